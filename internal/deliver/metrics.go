package deliver

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/mtconnect/mtc-ingest/internal/entity"
	"github.com/mtconnect/mtc-ingest/internal/observation"
	"github.com/mtconnect/mtc-ingest/internal/pipeline"
)

// metricsInterval is the sampling cadence of the throughput meter.
const metricsInterval = 10 * time.Second

// ComputeMetrics periodically reads a delivery counter, maintains an
// exponentially decayed one-minute average, and publishes a synthetic
// observation on the configured metrics data item when the average moves.
type ComputeMetrics struct {
	strand   *pipeline.Strand
	contract pipeline.Contract
	dataItem string
	count    *atomic.Int64

	timer    *time.Timer
	stopped  atomic.Bool
	first    bool
	last     int64
	lastAvg  float64
	lastTime time.Time
}

func NewComputeMetrics(st *pipeline.Strand, contract pipeline.Contract, dataItem string, count *atomic.Int64) *ComputeMetrics {
	return &ComputeMetrics{
		strand:   st,
		contract: contract,
		dataItem: dataItem,
		count:    count,
	}
}

func (c *ComputeMetrics) Start() {
	c.stopped.Store(false)
	c.first = true
	c.compute()
}

func (c *ComputeMetrics) Stop() {
	c.stopped.Store(true)
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *ComputeMetrics) compute() {
	if c.stopped.Load() || c.dataItem == "" {
		return
	}

	di := c.contract.FindDataItem("Agent", c.dataItem)
	if di == nil {
		return
	}

	now := time.Now()
	if c.first {
		c.last = 0
		c.lastAvg = 0.0
		c.lastTime = now
		c.first = false
	} else {
		dt := now.Sub(c.lastTime).Seconds()
		c.lastTime = now
		count := c.count.Load()
		delta := count - c.last
		c.last = count

		// One-minute decayed average; the instantaneous rate is delta/dt.
		avg := float64(delta) + math.Exp(-dt/60.0)*(c.lastAvg-float64(delta))
		if avg != c.lastAvg {
			props := map[string]entity.Value{
				entity.ValueProperty: float64(delta) / 10.0,
				"duration":           10.0,
			}
			if obs, _ := observation.Make(di, props, time.Now().UTC()); obs != nil {
				c.contract.DeliverObservation(obs)
			}
			c.lastAvg = avg
		}
	}

	c.timer = c.strand.After(metricsInterval, c.compute)
}
