package account

//revive:disable

// OnboardRequest creates a dependent's account set. Empty fields take the
// configured defaults.
type OnboardRequest struct {
	Categories []string `json:"categories" validate:"omitempty,dive,required"`
	Currency   string   `json:"currency" validate:"omitempty,len=3,uppercase,alpha"`
}

// StatusRequest changes an account's lifecycle status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive frozen"`
}

// AllocationRule is one row of an allocation table.
type AllocationRule struct {
	Category   string `json:"category" validate:"required"`
	Percentage string `json:"percentage" validate:"required,numeric"`
}

// AllocationRequest replaces a dependent's allocation table. An empty list
// restores the default.
type AllocationRequest struct {
	Rules []AllocationRule `json:"rules" validate:"dive"`
}

// AllocationResponse is the active table for a dependent.
type AllocationResponse struct {
	DependentID string           `json:"dependentId"`
	Custom      bool             `json:"custom"`
	Rules       []AllocationRule `json:"rules"`
}
