package eventcore_test

import (
	"context"
	"encoding/json"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"go-eventcore/internal/testdb"
	"go-eventcore/pkg/eventcore"
)

func TestPostgresIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "PostgresEventLog Suite")
}

var (
	ctx      context.Context
	instance *testdb.Instance
	log      *eventcore.PostgresEventLog
)

var _ = BeforeSuite(func() {
	ctx = context.Background()
	var err error
	instance, err = testdb.Start(ctx)
	Expect(err).NotTo(HaveOccurred())

	log, err = eventcore.NewPostgresEventLog(ctx, instance.Pool)
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if instance != nil {
		instance.Close(ctx)
	}
})

var _ = BeforeEach(func() {
	Expect(instance.Truncate(ctx)).To(Succeed())
})

type seatTaken struct {
	SeatID string `json:"seat_id"`
}

func encodeSeatTaken(s seatTaken) eventcore.EncodedEvent {
	payload, _ := json.Marshal(s)
	return eventcore.EncodedEvent{Type: "SeatTaken", Payload: payload}
}

func encodeSeatTakenForSeed(s seatTaken) (string, []byte, error) {
	payload, err := json.Marshal(s)
	return "SeatTaken", payload, err
}

var _ = Describe("PostgresEventLog", func() {
	Describe("AppendWithConflictCheck", func() {
		It("accepts the first write when no prior event matches the conflict filter", func() {
			result, err := log.AppendWithConflictCheck(ctx,
				[]eventcore.EncodedEvent{encodeSeatTaken(seatTaken{SeatID: "A1"})},
				nil, eventcore.ForType("SeatTaken", eventcore.AttrString("seat_id", "A1")), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Conflicted).To(BeFalse())
			Expect(result.Sequences).To(HaveLen(1))
		})

		It("appends every event in a batch atomically", func() {
			result, err := log.AppendWithConflictCheck(ctx,
				[]eventcore.EncodedEvent{
					encodeSeatTaken(seatTaken{SeatID: "A1"}),
					encodeSeatTaken(seatTaken{SeatID: "A2"}),
				}, nil, eventcore.Empty(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Sequences).To(HaveLen(2))
			Expect(result.Sequences[1]).To(Equal(result.Sequences[0] + 1))
		})

		It("rejects and persists nothing when a conflicting event exists above lastSeen", func() {
			first, err := log.AppendWithConflictCheck(ctx,
				[]eventcore.EncodedEvent{encodeSeatTaken(seatTaken{SeatID: "A1"})},
				nil, eventcore.ForType("SeatTaken", eventcore.AttrString("seat_id", "A1")), 0)
			Expect(err).NotTo(HaveOccurred())

			result, err := log.AppendWithConflictCheck(ctx,
				[]eventcore.EncodedEvent{encodeSeatTaken(seatTaken{SeatID: "A1"})},
				nil, eventcore.ForType("SeatTaken", eventcore.AttrString("seat_id", "A1")), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Conflicted).To(BeTrue())
			Expect(result.ConflictCount).To(Equal(1))

			events, _, err := log.QueryWithTags(ctx, eventcore.TagWithFact(
				eventcore.ForType("SeatTaken"), "probe"))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Sequence).To(Equal(first.Sequences[0]))
		})

		It("succeeds once the caller's lastSeen catches up to the conflicting event", func() {
			first, err := log.AppendWithConflictCheck(ctx,
				[]eventcore.EncodedEvent{encodeSeatTaken(seatTaken{SeatID: "A1"})},
				nil, eventcore.ForType("SeatTaken", eventcore.AttrString("seat_id", "A1")), 0)
			Expect(err).NotTo(HaveOccurred())

			result, err := log.AppendWithConflictCheck(ctx,
				[]eventcore.EncodedEvent{encodeSeatTaken(seatTaken{SeatID: "A2"})},
				nil, eventcore.ForType("SeatTaken", eventcore.AttrString("seat_id", "A1")), first.Sequences[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Conflicted).To(BeFalse())
		})
	})

	Describe("QueryWithTags", func() {
		It("returns the empty result for an empty clause set without a round trip", func() {
			events, maxSeq, err := log.QueryWithTags(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(BeEmpty())
			Expect(maxSeq).To(BeZero())
		})

		It("tags each event with every fact whose clause it matched", func() {
			_, err := log.AppendUnchecked(ctx, []eventcore.EncodedEvent{
				encodeSeatTaken(seatTaken{SeatID: "A1"}),
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			clauses := append(
				eventcore.TagWithFact(eventcore.ForType("SeatTaken", eventcore.AttrString("seat_id", "A1")), "fact-x"),
				eventcore.TagWithFact(eventcore.ForType("SeatTaken", eventcore.AttrString("seat_id", "A9")), "fact-y")...,
			)
			events, _, err := log.QueryWithTags(ctx, clauses)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].HasFact("fact-x")).To(BeTrue())
			Expect(events[0].HasFact("fact-y")).To(BeFalse())
		})
	})

	Describe("testdb.Seed", func() {
		It("appends fixture events through AdminAppendUnchecked, tagged with a generated correlation id", func() {
			metadata := map[string]string{"correlation_id": eventcore.NewCorrelationID("seed")}
			seqs, err := testdb.Seed(ctx, instance, encodeSeatTakenForSeed, []seatTaken{{SeatID: "Z9"}}, metadata)
			Expect(err).NotTo(HaveOccurred())
			Expect(seqs).To(HaveLen(1))

			events, _, err := log.QueryWithTags(ctx, eventcore.TagWithFact(
				eventcore.ForType("SeatTaken", eventcore.AttrString("seat_id", "Z9")), "seed-check"))
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Metadata["correlation_id"]).To(HavePrefix("seed_"))
		})
	})

	Describe("fact isolation via Compose", func() {
		It("only routes events matching a fact's own filter to that fact", func() {
			_, err := log.AppendUnchecked(ctx, []eventcore.EncodedEvent{
				encodeSeatTaken(seatTaken{SeatID: "A1"}),
				encodeSeatTaken(seatTaken{SeatID: "B2"}),
			}, nil)
			Expect(err).NotTo(HaveOccurred())

			type countCtx struct{ count int }
			factA := eventcore.NewFact(
				eventcore.ForType("SeatTaken", eventcore.AttrString("seat_id", "A1")),
				func(c countCtx, events []eventcore.DecodedEvent) countCtx {
					c.count += len(events)
					return c
				},
			)
			decode := func(eventType string, payload []byte) (any, error) {
				var v seatTaken
				err := json.Unmarshal(payload, &v)
				return v, err
			}

			got, _, _, err := eventcore.Compose(ctx, log, []eventcore.Fact[countCtx]{factA}, decode, countCtx{})
			Expect(err).NotTo(HaveOccurred())
			Expect(got.count).To(Equal(1))
		})
	})
})
