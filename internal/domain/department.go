package domain

// Departments known to the portal. Rooms are keyed by these names.
const (
	DepartmentHealth      = "Health Department"
	DepartmentWater       = "Water Department"
	DepartmentSanitation  = "Sanitation Department"
	DepartmentElectricity = "Electricity Department"
	DepartmentGeneral     = "General Department"
)
