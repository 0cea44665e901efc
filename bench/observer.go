package bench

// Observer receives live run events. Methods are called concurrently from
// every worker and must not block.
type Observer interface {
	ObserveSample(worker int, s Sample)
	ObserveState(worker int, from, to WorkerState)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) ObserveSample(worker int, s Sample) {
	for _, obs := range o {
		obs.ObserveSample(worker, s)
	}
}

func (o Observers) ObserveState(worker int, from, to WorkerState) {
	for _, obs := range o {
		obs.ObserveState(worker, from, to)
	}
}

type nopObserver struct{}

func (nopObserver) ObserveSample(int, Sample)                  {}
func (nopObserver) ObserveState(int, WorkerState, WorkerState) {}
