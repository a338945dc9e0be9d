package models

type Customer struct {
	ID       string `json:"_id"`
	Name     string `json:"nombre,omitempty"`
	Document string `json:"dni,omitempty"`
	Phone    string `json:"telefono,omitempty"`
	Guest    bool   `json:"invitado,omitempty"`
}

type CustomerCreate struct {
	Name     string `json:"nombre,omitempty"`
	Document string `json:"dni,omitempty"`
	Phone    string `json:"telefono,omitempty"`
}
