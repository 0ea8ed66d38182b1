package tips

import (
	"math/rand"
	"sync"
	"time"
)

type Tip struct {
	Tip    string `json:"tip"`
	Source string `json:"source"`
}

var Default = []Tip{
	{Tip: "Drink 8 glasses of water a day.", Source: "WHO"},
	{Tip: "Regular walking lowers blood pressure.", Source: "Healthline"},
	{Tip: "Add greens to every meal.", Source: "Nutrition.org"},
	{Tip: "Practice deep breathing daily.", Source: "Mayo Clinic"},
}

type Picker struct {
	tips []Tip

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPicker falls back to Default when tips is empty.
func NewPicker(tips []Tip, seed int64) *Picker {
	if len(tips) == 0 {
		tips = Default
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Picker{
		tips: append([]Tip(nil), tips...),
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (p *Picker) Daily() Tip {
	p.mu.Lock()
	i := p.rng.Intn(len(p.tips))
	p.mu.Unlock()
	return p.tips[i]
}

func (p *Picker) All() []Tip {
	return append([]Tip(nil), p.tips...)
}
