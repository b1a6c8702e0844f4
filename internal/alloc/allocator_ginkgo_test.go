package alloc

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spinctl/boardctl/internal/boardgraph"
	"github.com/spinctl/boardctl/internal/metrics"
	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/store"
	"github.com/spinctl/boardctl/internal/topology"
)

// TestAllocatorSuite is the one *testing.T entry point ginkgo needs; the
// actual specs live in the Describe/It blocks below. Plain table-driven
// tests cover the mechanical cases (see allocator_test.go); this BDD suite
// covers the allocator's trickier scenario behavior (by_count sizing,
// tie-break ordering).
func TestAllocatorSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Allocator Suite")
}

var _ = Describe("Allocator", func() {
	var (
		s store.PersistentStore
		g *boardgraph.Graph
		a *Allocator
	)

	// fullMachine (defined in allocator_test.go) takes a *testing.T for
	// Fatalf/Cleanup; ginkgo specs don't get one, so these tests build the
	// fixture and allocator directly against the store/graph types instead
	// of reusing that helper.
	BeforeEach(func() {
		var err error
		s, err = store.Open(":memory:")
		Expect(err).NotTo(HaveOccurred())

		g = boardgraph.New()

		err = s.Transaction(func(tx store.Tx) error {
			m, merr := model.NewMachine("m", 2, 2, 3, 5, nil, true)
			if merr != nil {
				return merr
			}
			if perr := tx.PutMachine(m); perr != nil {
				return perr
			}
			id := model.BoardID(0)
			for y := 0; y < 2; y++ {
				for x := 0; x < 2; x++ {
					for z := 0; z < 3; z++ {
						n := 1
						b := &model.Board{ID: id, MachineID: "m", X: x, Y: y, Z: z, BoardNum: &n}
						if perr := tx.PutBoard(b); perr != nil {
							return perr
						}
						id++
					}
				}
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Rebuild(s)).To(Succeed())
		a = New(g, s, metrics.NewAllocatorFor(prometheus.NewRegistry()))
	})

	AfterEach(func() {
		Expect(s.Close()).To(Succeed())
	})

	When("a by_count request is smaller than one full triad", func() {
		It("rounds up to the smallest rectangle whose W*H*3 covers the count", func() {
			job := &model.Job{ID: "job1", MachineID: "m", State: model.JobQueued}
			res, err := a.Allocate(job, model.NewByCount(2, 1, 0, 0), time.Unix(0, 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Boards).To(HaveLen(2))
			Expect(job.State).To(Equal(model.JobPower))
		})
	})

	When("an anchor has more allocatable boards than the request needs", func() {
		It("prefers the boards with the earliest power_off_timestamp", func() {
			// Triad (0,0) has all 3 boards allocatable; a 1x1 request with
			// max_dead=1 only needs 2, so the power-off tie-break must
			// pick the 2 boards with the earliest power_off_timestamp,
			// leaving the most recently cooled board (z=1) unallocated.
			earliest, _ := g.BoardAt("m", topology.Coord{X: 0, Y: 0, Z: 0})
			middle, _ := g.BoardAt("m", topology.Coord{X: 0, Y: 0, Z: 2})
			latest, _ := g.BoardAt("m", topology.Coord{X: 0, Y: 0, Z: 1})

			err := s.Transaction(func(tx store.Tx) error {
				for id, ts := range map[model.BoardID]time.Time{
					earliest: time.Unix(100, 0),
					middle:   time.Unix(200, 0),
					latest:   time.Unix(300, 0),
				} {
					b, _ := g.Board(id)
					cp := *b
					cp.PowerOffTimestamp = ts
					if perr := tx.PutBoard(&cp); perr != nil {
						return perr
					}
				}
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Rebuild(s)).To(Succeed())

			job := &model.Job{ID: "job1", MachineID: "m", State: model.JobQueued}
			res, err := a.Allocate(job, model.NewByRectangle(1, 1, 1, 0, 0), time.Unix(0, 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Boards).To(ConsistOf(earliest, middle))
			Expect(res.Boards).NotTo(ContainElement(latest))
		})
	})
})
