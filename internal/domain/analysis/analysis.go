// Package analysis holds the result of one C2->C3->C4 pass and the typed
// block signal the analyzer is the sole component allowed to raise.
package analysis

import (
	"github.com/dannycabezas/semantic-firewall/internal/domain/mlsignals"
	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
	"github.com/dannycabezas/semantic-firewall/internal/domain/preprocess"
)

// Direction distinguishes the user-to-backend request from the
// backend-to-user reply.
type Direction string

const (
	DirectionIngress Direction = "ingress"
	DirectionEgress  Direction = "egress"
)

// Result is the outcome of analyze_content.
type Result struct {
	Preprocessed preprocess.PreprocessedText `json:"preprocessed"`
	MLSignals    mlsignals.MLSignals         `json:"ml_signals"`
	Decision     policy.Decision             `json:"decision"`
	Direction    Direction                   `json:"direction"`
	LatencyMs    int64                       `json:"latency_ms"`
}

// Blocked is raised when the policy decision blocks content. It carries
// everything the gateway needs to build a blocked response without
// re-deriving it.
type Blocked struct {
	Reason       string
	Direction    Direction
	MLSignals    mlsignals.MLSignals
	Preprocessed preprocess.PreprocessedText
	Decision     policy.Decision
}

func (b *Blocked) Error() string {
	if b.Reason != "" {
		return b.Reason
	}
	return "content blocked"
}
