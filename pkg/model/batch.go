package model

import "time"

// Batch is one invocation of the trial loop: N sequential trials sharing a
// single RunConfig. Persisted by the history store.
type Batch struct {
	ID        string    `json:"id"`
	ModelPath string    `json:"model_path"`
	RealTime  bool      `json:"real_time"`
	Trials    int       `json:"trials"`
	CreatedAt time.Time `json:"created_at"`

	Outcomes []Outcome `json:"outcomes,omitempty"`
}
