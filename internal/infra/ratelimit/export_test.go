package ratelimit

func (l *Limiter) Reset() { l.reset() }
