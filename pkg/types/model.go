package types

import (
	"time"
)

// DeviceKind selects which energy figure a schedule entry contributes.
type DeviceKind string

const (
	DeviceKindConsumptionTool DeviceKind = "consumption_tool"
	DeviceKindPowerPlant      DeviceKind = "power_plant"
)

// Valid reports whether k is a known device kind.
func (k DeviceKind) Valid() bool {
	return k == DeviceKindConsumptionTool || k == DeviceKindPowerPlant
}

// User is an account that owns devices, storage units and schedules.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Role      string    `json:"role"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	RoleUser = "user"
	RoleDemo = "demo"
)

// ConsumptionTool is a load that draws KWPerHour while it runs.
type ConsumptionTool struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userID"`
	Name      string    `json:"name"`
	KWPerHour float64   `json:"kwPerHour"`
	CreatedAt time.Time `json:"createdAt"`
}

// PowerPlant is a group of identical generators, each producing KWPerHour
// while it runs.
type PowerPlant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userID"`
	Name      string    `json:"name"`
	KWPerHour float64   `json:"kwPerHour"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
}

// StorageUnit is a single battery bank.
type StorageUnit struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userID"`
	Name        string    `json:"name"`
	CapacityKWH float64   `json:"capacityKWH"`
	CurrentKWH  float64   `json:"currentKWH"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StoragePool is every storage unit of a user treated as one balance.
type StoragePool struct {
	TotalCapacityKWH float64 `json:"totalCapacityKWH"`
	CurrentKWH       float64 `json:"currentKWH"`
}

// PoolOf sums the capacity and charge of units.
func PoolOf(units []StorageUnit) StoragePool {
	var p StoragePool
	for _, u := range units {
		p.TotalCapacityKWH += u.CapacityKWH
		p.CurrentKWH += u.CurrentKWH
	}
	return p
}

// ScheduleEntry is one device's planned activity on one date. Only the energy
// field that matches DeviceKind is meaningful.
type ScheduleEntry struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userID"`
	Date              Day        `json:"date"`
	DeviceID          string     `json:"deviceID"`
	DeviceName        string     `json:"deviceName"`
	DeviceKind        DeviceKind `json:"deviceType"`
	HoursUsed         float64    `json:"hoursUsed"`
	EnergyConsumption float64    `json:"energyConsumption"`
	EnergyGeneration  float64    `json:"energyGeneration"`
	IsRecurring       bool       `json:"isRecurring"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// ChatHistory is one relayed chat turn.
type ChatHistory struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	FullName  string    `json:"fullName"`
	Chat      string    `json:"chat"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"createdAt"`
}

// Plan is a consistent snapshot of everything a projection needs for a user.
type Plan struct {
	Tools     []ConsumptionTool `json:"tools"`
	Plants    []PowerPlant      `json:"plants"`
	Units     []StorageUnit     `json:"units"`
	Schedules []ScheduleEntry   `json:"schedules"`
}

// Pool returns the pooled view of the plan's storage units.
func (p Plan) Pool() StoragePool {
	return PoolOf(p.Units)
}
