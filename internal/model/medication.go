package model

import "time"

// Medication form values accepted by the API.
const (
	FormTablet   = "tablet"
	FormCapsule  = "capsule"
	FormDrops    = "drops"
	FormLiquid   = "liquid"
	FormOintment = "ointment"
	FormSpray    = "spray"
	FormPowder   = "powder"
)

// ValidForm reports whether form is one of the known medication forms.
func ValidForm(form string) bool {
	switch form {
	case FormTablet, FormCapsule, FormDrops, FormLiquid, FormOintment, FormSpray, FormPowder:
		return true
	}
	return false
}

type Medication struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Form              string `json:"form"`
	DosagePerUnit     string `json:"dosage_per_unit,omitempty"`
	Unit              string `json:"unit"`
	Instructions      string `json:"instructions"`
	TotalQuantity     int    `json:"total_quantity"`
	RemainingQuantity int    `json:"remaining_quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	TrackStock        bool   `json:"track_stock"`
	// LowStock latches when remaining crosses below the threshold and
	// re-arms when a restock brings it back above. It exists so the
	// low-stock alert fires on the crossing, not on every read.
	LowStock  bool      `json:"low_stock"`
	IconName  string    `json:"icon_name"`
	IconColor string    `json:"icon_color"`
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
