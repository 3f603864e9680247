package ledger

import "time"

type Identity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Category    string    `json:"category"`
	Language    string    `json:"language"`
	Balance     int64     `json:"balance"`
	Experience  int64     `json:"experience"`
	Level       int64     `json:"level"`
	Vitality    int64     `json:"vitality"`
	Stamina     int64     `json:"stamina"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Value returns the current value of a numeric field.
func (p Identity) Value(f Field) int64 {
	switch f {
	case FieldBalance:
		return p.Balance
	case FieldExperience:
		return p.Experience
	case FieldLevel:
		return p.Level
	case FieldVitality:
		return p.Vitality
	case FieldStamina:
		return p.Stamina
	}
	return 0
}

func (p *Identity) set(f Field, v int64) {
	switch f {
	case FieldBalance:
		p.Balance = v
	case FieldExperience:
		p.Experience = v
	case FieldLevel:
		p.Level = v
	case FieldVitality:
		p.Vitality = v
	case FieldStamina:
		p.Stamina = v
	}
}

type RegisterInput struct {
	ID          string
	DisplayName string
	Category    string
	Language    string
}

// PartialUpdate is the whitelist of profile fields a client may overwrite.
// Nil fields are left untouched.
type PartialUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Category    *string `json:"category,omitempty"`
	Language    *string `json:"language,omitempty"`
	Experience  *int64  `json:"experience,omitempty"`
	Level       *int64  `json:"level,omitempty"`
	Vitality    *int64  `json:"vitality,omitempty"`
	Stamina     *int64  `json:"stamina,omitempty"`
}

func (u PartialUpdate) Fields() []string {
	var out []string
	if u.DisplayName != nil {
		out = append(out, "display_name")
	}
	if u.Category != nil {
		out = append(out, "category")
	}
	if u.Language != nil {
		out = append(out, "language")
	}
	if u.Experience != nil {
		out = append(out, "experience")
	}
	if u.Level != nil {
		out = append(out, "level")
	}
	if u.Vitality != nil {
		out = append(out, "vitality")
	}
	if u.Stamina != nil {
		out = append(out, "stamina")
	}
	return out
}

func (u PartialUpdate) Empty() bool {
	return len(u.Fields()) == 0
}

func (u PartialUpdate) applyTo(p *Identity) error {
	if u.DisplayName != nil {
		name, err := validateDisplayName(*u.DisplayName)
		if err != nil {
			return err
		}
		p.DisplayName = name
	}
	if u.Category != nil {
		category, err := validateCategory(*u.Category)
		if err != nil {
			return err
		}
		p.Category = category
	}
	if u.Language != nil {
		lang, err := normalizeLanguage(*u.Language)
		if err != nil {
			return err
		}
		p.Language = lang
	}
	counts := []struct {
		field Field
		v     *int64
	}{
		{FieldExperience, u.Experience},
		{FieldLevel, u.Level},
		{FieldVitality, u.Vitality},
		{FieldStamina, u.Stamina},
	}
	for _, c := range counts {
		if c.v == nil {
			continue
		}
		if err := validateCount(string(c.field), *c.v); err != nil {
			return err
		}
		if *c.v < c.field.floor() {
			return invalidf("%s must be >= %d", c.field, c.field.floor())
		}
		p.set(c.field, *c.v)
	}
	return nil
}

type AdjustResult struct {
	PlayerID string `json:"player_id"`
	Field    Field  `json:"field"`
	Previous int64  `json:"previous"`
	Value    int64  `json:"value"`
	Clamped  bool   `json:"clamped"`
}

type PurchaseInput struct {
	PlayerID       string
	ItemCode       string
	Price          int64
	IdempotencyKey string
}

type SaleRecord struct {
	ID        string    `json:"id"`
	BuyerID   string    `json:"buyer_id"`
	ItemCode  string    `json:"item_code"`
	Price     int64     `json:"price"`
	Balance   int64     `json:"balance_after"`
	CreatedAt time.Time `json:"created_at"`
}

type WagerResult struct {
	PlayerID string `json:"player_id"`
	Amount   int64  `json:"amount"`
	Won      bool   `json:"won"`
	Balance  int64  `json:"balance"`
}

type ClaimRecord struct {
	ResourceName string    `json:"resource_name"`
	OwnerID      string    `json:"owner_id,omitempty"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

// Owned reports whether the claim currently has an owner.
func (c ClaimRecord) Owned() bool {
	return c.OwnerID != ""
}

// Bond is one side of a relationship: PlayerID sees PartnerID. Each bond is
// stored as two mirrored rows sharing BondID.
type Bond struct {
	BondID      string     `json:"bond_id"`
	PlayerID    string     `json:"player_id"`
	PartnerID   string     `json:"partner_id"`
	Kind        string     `json:"kind"`
	InitiatorID string     `json:"initiator_id"`
	Exclusive   bool       `json:"exclusive"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// Mirror returns the same bond seen from the partner's side.
func (b Bond) Mirror() Bond {
	m := b
	m.PlayerID, m.PartnerID = b.PartnerID, b.PlayerID
	return m
}

type BondInput struct {
	IDA         string
	IDB         string
	Kind        string
	InitiatorID string
}

type Link struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	LinkType  string    `json:"link_type"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type LinkInput struct {
	SourceID string
	TargetID string
	LinkType string
	Label    string
}

// Direction selects outgoing or incoming links.
type Direction string

const (
	DirectionOut Direction = "out"
	DirectionIn  Direction = "in"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", DirectionOut:
		return DirectionOut, nil
	case DirectionIn:
		return DirectionIn, nil
	}
	return "", invalidf("direction must be out or in")
}
