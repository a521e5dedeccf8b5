package session

import (
	"math"

	"github.com/stagelab/stagechat/pkg/types"
)

// Dynamics tracks how attention and chattiness translate into selection
// weights. Attention decays every tick and spikes when an agent is
// addressed; a recent speaker gets a smaller carry-over boost.
type Dynamics struct {
	DecayFactor  float64
	AddressBoost float64
	SpeakBoost   float64
	WeightFloor  float64
}

// NewDynamics fills zero values with the standard settings.
func NewDynamics(decay, addressBoost, speakBoost, floor float64) *Dynamics {
	d := &Dynamics{
		DecayFactor:  decay,
		AddressBoost: addressBoost,
		SpeakBoost:   speakBoost,
		WeightFloor:  floor,
	}
	if d.DecayFactor <= 0 || d.DecayFactor >= 1 {
		d.DecayFactor = 0.9
	}
	if d.AddressBoost <= 0 {
		d.AddressBoost = 0.3
	}
	if d.SpeakBoost <= 0 {
		d.SpeakBoost = 0.6
	}
	if d.WeightFloor <= 0 {
		d.WeightFloor = 0.05
	}
	return d
}

// DecayTick applies one tick of multiplicative attention decay to the
// whole roster.
func (d *Dynamics) DecayTick(agents []*types.Agent) {
	for _, a := range agents {
		a.Attention *= d.DecayFactor
	}
}

// BoostAddress raises attention for an agent that was mentioned or
// replied to, clamped at 1.
func (d *Dynamics) BoostAddress(a *types.Agent) {
	a.Attention = math.Min(1, a.Attention+d.AddressBoost)
}

// BoostSpeak sets attention for an agent that just posted. This is an
// assignment, not an addition: speaking resets the agent to a moderate
// level rather than compounding.
func (d *Dynamics) BoostSpeak(a *types.Agent) {
	a.Attention = math.Min(1, d.SpeakBoost)
}

// Weight computes the selection weight for an agent. The floor keeps
// every agent reachable regardless of decay.
func (d *Dynamics) Weight(a *types.Agent) float64 {
	return math.Max(d.WeightFloor, a.Chattiness*(1+a.Attention))
}
