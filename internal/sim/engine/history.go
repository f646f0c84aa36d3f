package engine

// History holds one slot per completed block for every tracked counter.
// Cumulative counters never decrease: the slot for block k is the running
// total through block k, so any trailing-window value is a single
// subtraction. Point counters are per-block snapshots.
type History struct {
	// Cumulative vehicle time, one unit per vehicle per block.
	VehicleTimeP1 []int
	VehicleTimeP2 []int
	VehicleTimeP3 []int
	VehicleTime   []int

	// Cumulative completed-trip accounting, added at completion.
	TripWaitTime      []int
	TripRidingTime    []int
	CompletedCount    []int
	CompletedDistance []int

	// Cumulative request/cancellation counts.
	RequestedCount []int
	CancelledCount []int

	// Point snapshots.
	VehicleCount []int
	RequestRate  []float64
	Price        []float64
}

func newHistory() *History {
	return &History{}
}

// Blocks is the number of recorded slots.
func (h *History) Blocks() int { return len(h.VehicleTime) }

// extend opens the slot for the next block: cumulative counters copy their
// previous value forward, point counters start at zero.
func (h *History) extend() {
	carry := func(a []int) []int {
		last := 0
		if len(a) > 0 {
			last = a[len(a)-1]
		}
		return append(a, last)
	}
	h.VehicleTimeP1 = carry(h.VehicleTimeP1)
	h.VehicleTimeP2 = carry(h.VehicleTimeP2)
	h.VehicleTimeP3 = carry(h.VehicleTimeP3)
	h.VehicleTime = carry(h.VehicleTime)
	h.TripWaitTime = carry(h.TripWaitTime)
	h.TripRidingTime = carry(h.TripRidingTime)
	h.CompletedCount = carry(h.CompletedCount)
	h.CompletedDistance = carry(h.CompletedDistance)
	h.RequestedCount = carry(h.RequestedCount)
	h.CancelledCount = carry(h.CancelledCount)

	h.VehicleCount = append(h.VehicleCount, 0)
	h.RequestRate = append(h.RequestRate, 0)
	h.Price = append(h.Price, 0)
}

func (h *History) addVehicleBlock(phase VehiclePhase) {
	i := len(h.VehicleTime) - 1
	if i < 0 {
		return
	}
	switch phase {
	case VehicleIdle:
		h.VehicleTimeP1[i]++
	case VehicleDispatched:
		h.VehicleTimeP2[i]++
	case VehicleWithRider:
		h.VehicleTimeP3[i]++
	}
	h.VehicleTime[i]++
}

func (h *History) addCompletedTrip(t *Trip) {
	i := len(h.VehicleTime) - 1
	if i < 0 {
		return
	}
	h.TripWaitTime[i] += t.WaitBlocks()
	h.TripRidingTime[i] += t.RideBlocks()
	h.CompletedCount[i]++
	h.CompletedDistance[i] += t.Distance
}

func (h *History) addCancelledTrip() {
	i := len(h.VehicleTime) - 1
	if i < 0 {
		return
	}
	h.CancelledCount[i]++
}

func (h *History) addRequest() {
	i := len(h.VehicleTime) - 1
	if i < 0 {
		return
	}
	h.RequestedCount[i]++
}

func (h *History) observe(vehicleCount int, requestRate, price float64) {
	i := len(h.VehicleTime) - 1
	if i < 0 {
		return
	}
	h.VehicleCount[i] = vehicleCount
	h.RequestRate[i] = requestRate
	h.Price[i] = price
}

// windowInt is the trailing-window value of a cumulative counter:
// history[now] - history[max(0, now-w)] interpreted as "strictly before the
// window start", which for the first w blocks means the full running total.
func windowInt(a []int, w int) int {
	n := len(a)
	if n == 0 {
		return 0
	}
	lo := n - 1 - w
	if lo < 0 {
		return a[n-1]
	}
	return a[n-1] - a[lo]
}

func windowMeanInt(a []int, w int) float64 {
	n := len(a)
	if n == 0 {
		return 0
	}
	lo := n - w
	if lo < 0 {
		lo = 0
	}
	sum := 0
	for _, v := range a[lo:] {
		sum += v
	}
	return float64(sum) / float64(n-lo)
}

func windowMeanFloat(a []float64, w int) float64 {
	n := len(a)
	if n == 0 {
		return 0
	}
	lo := n - w
	if lo < 0 {
		lo = 0
	}
	sum := 0.0
	for _, v := range a[lo:] {
		sum += v
	}
	return sum / float64(n-lo)
}

// Measures are the derived fractions and means over a trailing window. Every
// division is guarded: an empty window yields zeros, never NaN.
type Measures struct {
	VehicleFractionP1 float64 `json:"vehicle_fraction_p1"`
	VehicleFractionP2 float64 `json:"vehicle_fraction_p2"`
	VehicleFractionP3 float64 `json:"vehicle_fraction_p3"`

	MeanWaitTime     float64 `json:"mean_wait_time"`
	MeanRideTime     float64 `json:"mean_ride_time"`
	MeanTripDistance float64 `json:"mean_trip_distance"`
	WaitFraction     float64 `json:"wait_fraction"`

	CompletedPerBlock float64 `json:"completed_per_block"`
	MeanVehicleCount  float64 `json:"mean_vehicle_count"`
	MeanRequestRate   float64 `json:"mean_request_rate"`
	MeanPrice         float64 `json:"mean_price"`
}

// Window computes the measures over the trailing w blocks ending at the most
// recent slot.
func (h *History) Window(w int) Measures {
	var m Measures
	if h.Blocks() == 0 || w <= 0 {
		return m
	}

	total := windowInt(h.VehicleTime, w)
	if total > 0 {
		m.VehicleFractionP1 = float64(windowInt(h.VehicleTimeP1, w)) / float64(total)
		m.VehicleFractionP2 = float64(windowInt(h.VehicleTimeP2, w)) / float64(total)
		m.VehicleFractionP3 = float64(windowInt(h.VehicleTimeP3, w)) / float64(total)
	}

	completed := windowInt(h.CompletedCount, w)
	wait := windowInt(h.TripWaitTime, w)
	ride := windowInt(h.TripRidingTime, w)
	if completed > 0 {
		m.MeanWaitTime = float64(wait) / float64(completed)
		m.MeanRideTime = float64(ride) / float64(completed)
		m.MeanTripDistance = float64(windowInt(h.CompletedDistance, w)) / float64(completed)
	}
	if wait+ride > 0 {
		m.WaitFraction = float64(wait) / float64(wait+ride)
	}

	n := h.Blocks()
	span := w
	if span > n {
		span = n
	}
	m.CompletedPerBlock = float64(completed) / float64(span)
	m.MeanVehicleCount = windowMeanInt(h.VehicleCount, w)
	m.MeanRequestRate = windowMeanFloat(h.RequestRate, w)
	m.MeanPrice = windowMeanFloat(h.Price, w)
	return m
}
