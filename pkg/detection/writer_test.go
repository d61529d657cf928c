package detection

import (
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/suite"
)

type WriterTestSuite struct {
	suite.Suite
	buf []byte
	w   *Writer
}

func (s *WriterTestSuite) SetupTest() {
	s.buf = make([]byte, BatchSize)
	w, err := NewWriter(s.buf, LayoutPlain)
	s.Require().NoError(err)
	s.w = w
}

func passing(n int) []Candidate {
	cands := make([]Candidate, n)
	for i := range cands {
		cands[i] = Candidate{
			Box:    Box{X: 0.5, Y: 0.5, W: 0.1, H: 0.1},
			Scores: []float32{0.6 + float32(i)/100},
		}
	}
	return cands
}

func (s *WriterTestSuite) TestSingleDetectionScenario() {
	cands := []Candidate{{
		Box:    Box{X: 0.5, Y: 0.5, W: 0.2, H: 0.4},
		Scores: []float32{0.9},
	}}
	batch := s.w.Write(cands, 640, 480)
	s.Equal(int32(1), batch.Count)

	got, err := Decode(s.buf)
	s.Require().NoError(err)
	s.Equal(int32(1), got.Count)
	s.Equal(Record{ClassID: 0, Confidence: 0.9, X: 256, Y: 144, W: 128, H: 192}, got.Records[0])
}

func (s *WriterTestSuite) TestCapacityCap() {
	batch := s.w.Write(passing(15), 640, 480)
	s.Equal(int32(Capacity), batch.Count)

	got, err := Decode(s.buf)
	s.Require().NoError(err)
	s.Equal(int32(Capacity), got.Count)
	for i, r := range got.Valid() {
		s.InDelta(0.6+float32(i)/100, r.Confidence, 1e-6, "record %d out of detector order", i)
	}
}

func (s *WriterTestSuite) TestThresholdIsExclusive() {
	cands := []Candidate{
		{Box: Box{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, Scores: []float32{0.5}},
		{Box: Box{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, Scores: []float32{0.50001}},
	}
	batch := s.w.Write(cands, 100, 100)
	s.Require().Equal(int32(1), batch.Count)
	s.Equal(float32(0.50001), batch.Records[0].Confidence)
}

func (s *WriterTestSuite) TestOnlyClassZeroIsInspected() {
	cands := []Candidate{
		{Box: Box{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, Scores: []float32{0.1, 0.99, 0.99}},
		{Box: Box{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, Scores: nil},
		{Box: Box{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, Scores: []float32{0.7, 0.99}},
	}
	batch := s.w.Write(cands, 100, 100)
	s.Require().Equal(int32(1), batch.Count)
	s.Equal(int32(0), batch.Records[0].ClassID)
	s.Equal(float32(0.7), batch.Records[0].Confidence)
}

func (s *WriterTestSuite) TestZeroCandidates() {
	batch := s.w.Write(nil, 640, 480)
	s.Equal(int32(0), batch.Count)

	got, err := Decode(s.buf)
	s.Require().NoError(err)
	s.Equal(int32(0), got.Count)
	s.Empty(got.Valid())
}

func (s *WriterTestSuite) TestNegativeOriginKept() {
	cands := []Candidate{{Box: Box{X: 0.05, Y: 0.05, W: 0.2, H: 0.2}, Scores: []float32{0.8}}}
	batch := s.w.Write(cands, 100, 100)
	s.Require().Equal(int32(1), batch.Count)
	s.Equal(int32(-5), batch.Records[0].X)
	s.Equal(int32(-5), batch.Records[0].Y)
	s.Equal(int32(20), batch.Records[0].W)
}

func (s *WriterTestSuite) TestStaleSlotsIgnored() {
	s.w.Write(passing(5), 640, 480)
	s.w.Write(passing(2), 640, 480)

	got, err := Decode(s.buf)
	s.Require().NoError(err)
	s.Equal(int32(2), got.Count)
	s.Len(got.Valid(), 2)
	// slot 3 still holds the previous run's record
	s.InDelta(0.63, got.Records[3].Confidence, 1e-6)
}

func (s *WriterTestSuite) TestCountMatchesPassingCandidates() {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(40)
		cands := make([]Candidate, n)
		want := 0
		for i := range cands {
			score := rng.Float32()
			if score > Threshold {
				want++
			}
			cands[i] = Candidate{
				Box:    Box{X: rng.Float64(), Y: rng.Float64(), W: rng.Float64(), H: rng.Float64()},
				Scores: []float32{score, rng.Float32()},
			}
		}
		if want > Capacity {
			want = Capacity
		}
		width, height := 1+rng.Intn(4096), 1+rng.Intn(4096)
		batch := s.w.Write(cands, width, height)
		s.Require().Equal(int32(want), batch.Count)

		got, err := Decode(s.buf)
		s.Require().NoError(err)
		s.Require().Equal(batch.Count, got.Count)
		s.Require().Equal(batch.Valid(), got.Valid())
	}
}

func (s *WriterTestSuite) TestMetrics() {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	w, err := NewWriter(s.buf, LayoutPlain, WithMetrics(m))
	s.Require().NoError(err)

	cands := append(passing(15), Candidate{Scores: []float32{0.2}}, Candidate{})
	w.Write(cands, 640, 480)

	s.Equal(float64(17), counterValue(m.Candidates))
	s.Equal(float64(10), counterValue(m.Written))
	s.Equal(float64(2), counterValue(m.BelowThreshold))
	s.Equal(float64(5), counterValue(m.Dropped))
}

func (s *WriterTestSuite) TestShortBuffer() {
	_, err := NewWriter(make([]byte, BatchSize-1), LayoutPlain)
	s.ErrorIs(err, ErrShortBuffer)
	_, err = NewWriter(make([]byte, BatchSize), LayoutSequenced)
	s.ErrorIs(err, ErrShortBuffer)
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func TestWriterTestSuite(t *testing.T) {
	suite.Run(t, new(WriterTestSuite))
}
