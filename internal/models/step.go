package models

// Step is one stop of the hunt. QRCodeValue is the secret printed into the
// physical QR code and only ever leaves the server through admin endpoints.
type Step struct {
	ID          int    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Clue        string `gorm:"type:text;not null" json:"clue"`
	QRCodeURL   string `gorm:"size:500" json:"qr_code_url"`
	QRCodeValue string `gorm:"uniqueIndex;size:255;not null" json:"qr_code_value"`
}

// PublicStep is the participant-facing projection of a Step.
type PublicStep struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Clue      string `json:"clue"`
	QRCodeURL string `json:"qr_code_url"`
}

func (s *Step) Public() *PublicStep {
	return &PublicStep{ID: s.ID, Name: s.Name, Clue: s.Clue, QRCodeURL: s.QRCodeURL}
}
