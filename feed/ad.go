package feed

import (
	"sync"
)

// NativeAd is a loaded ad ready to render.
type NativeAd struct {
	ID           string
	Title        string
	Description  string
	CallToAction string
	IconURL      string
	ImageURL     string
	Rating       float64
}

// AdSource hands out loaded ads. TryFetch returns false when nothing is loaded.
type AdSource interface {
	TryFetch() (NativeAd, bool)
}

// AdSourceFunc adapts a function to AdSource.
type AdSourceFunc func() (NativeAd, bool)

func (f AdSourceFunc) TryFetch() (NativeAd, bool) { return f() }

// AdSlot is the lazy part of an ad placeholder. Nothing is fetched until
// Fetch is called; a successful fetch is kept so the slot keeps showing the same ad.
type AdSlot struct {
	source AdSource

	mu     sync.Mutex
	ad     NativeAd
	filled bool
}

// Fetch returns the slot's ad, pulling one from the source on first success.
func (s *AdSlot) Fetch() (NativeAd, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filled {
		return s.ad, true
	}
	if s.source == nil {
		return NativeAd{}, false
	}
	ad, ok := s.source.TryFetch()
	if !ok {
		return NativeAd{}, false
	}
	s.ad, s.filled = ad, true
	return ad, true
}

// Filled reports whether the slot already holds an ad.
func (s *AdSlot) Filled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filled
}

// Pool is an in-memory AdSource fed by an ad loader. Ads are handed out in
// load order and each ad is handed out once.
type Pool struct {
	mu  sync.Mutex
	ads []NativeAd
}

// NewPool returns a pool preloaded with ads.
func NewPool(ads ...NativeAd) *Pool {
	p := &Pool{}
	p.Load(ads...)
	return p
}

// Load appends freshly loaded ads.
func (p *Pool) Load(ads ...NativeAd) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ads = append(p.ads, ads...)
}

// TryFetch removes and returns the oldest loaded ad.
func (p *Pool) TryFetch() (NativeAd, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ads) == 0 {
		return NativeAd{}, false
	}
	ad := p.ads[0]
	p.ads = p.ads[1:]
	return ad, true
}

// Len returns the number of ads waiting in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ads)
}
