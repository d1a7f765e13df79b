package felicity_modbus

import "time"

// RetryPolicy bounds the attempts of a register read. Backoff is the pause
// between two attempts, there is no pause after the last one.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Sleep       func(time.Duration)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     1 * time.Second,
		Sleep:       time.Sleep,
	}
}

// Do calls fn until it succeeds or MaxAttempts is reached. onFailure is called
// with the 1-based attempt index after every failed attempt.
func (p RetryPolicy) Do(fn func() error, onFailure func(attempt int, err error)) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return i, nil
		}
		if onFailure != nil {
			onFailure(i, err)
		}
		if i < attempts && p.Backoff > 0 {
			p.sleep(p.Backoff)
		}
	}
	return attempts, err
}

func (p RetryPolicy) sleep(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}
