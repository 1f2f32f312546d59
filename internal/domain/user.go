package domain

// Profile is the owner's display data as served by the user service.
type Profile struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	BirthDate string `json:"birthDate,omitempty"`
	Email     string `json:"email"`
}
