package ledger

import (
	"errors"
	"math"
	"testing"
)

func TestApplyDelta(t *testing.T) {
	tests := []struct {
		field   Field
		current int64
		delta   int64
		want    int64
	}{
		{field: FieldBalance, current: 0, delta: 100, want: 100},
		{field: FieldBalance, current: 100, delta: -100, want: 0},
		{field: FieldVitality, current: 5, delta: -1_000_000, want: 0},
		{field: FieldStamina, current: 100, delta: -30, want: 70},
		{field: FieldExperience, current: 0, delta: -1, want: 0},
		{field: FieldLevel, current: 3, delta: -10, want: 1},
		{field: FieldLevel, current: 1, delta: 4, want: 5},
	}
	for _, tc := range tests {
		got, err := ApplyDelta(tc.field, tc.current, tc.delta)
		if err != nil {
			t.Fatalf("%s %d%+d: unexpected error: %v", tc.field, tc.current, tc.delta, err)
		}
		if got != tc.want {
			t.Fatalf("%s %d%+d: got %d want %d", tc.field, tc.current, tc.delta, got, tc.want)
		}
	}
}

func TestApplyDeltaRejectsOverdraft(t *testing.T) {
	_, err := ApplyDelta(FieldBalance, 5, -1_000_000)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := ApplyDelta(FieldExperience, math.MaxInt64, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected overflow to be rejected, got %v", err)
	}
}

func TestValidatePlayerID(t *testing.T) {
	got, err := ValidatePlayerID(" 6F9619FF-8B86-D011-B42D-00C04FC964FF ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "6f9619ff-8b86-d011-b42d-00c04fc964ff" {
		t.Fatalf("got %q", got)
	}
	for _, id := range []string{"", "u1", "not-a-uuid", "6f9619ff-8b86-d011-b42d"} {
		if _, err := ValidatePlayerID(id); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected %q to fail, got %v", id, err)
		}
	}
}

func TestParseField(t *testing.T) {
	for _, s := range []string{"balance", "Experience", " level ", "vitality", "stamina"} {
		if _, err := ParseField(s); err != nil {
			t.Fatalf("expected field %q to parse: %v", s, err)
		}
	}
	if _, err := ParseField("fear"); err == nil {
		t.Fatalf("expected unknown field to fail")
	}
	if FieldBalance.Clamped() || !FieldVitality.Clamped() {
		t.Fatalf("unexpected clamp policy")
	}
}

func TestValidateDisplayName(t *testing.T) {
	if got, err := validateDisplayName("  Clary Fray "); err != nil || got != "Clary Fray" {
		t.Fatalf("got %q, %v", got, err)
	}
	for _, name := range []string{"", "   ", "Server Admin", "a\tb", string(make([]byte, maxDisplayNameLen+1))} {
		if _, err := validateDisplayName(name); err == nil {
			t.Fatalf("expected %q to fail", name)
		}
	}
}

func TestNormalizeLanguage(t *testing.T) {
	if got, _ := normalizeLanguage(""); got != DefaultLanguage {
		t.Fatalf("got %q", got)
	}
	if got, _ := normalizeLanguage("ES"); got != "es" {
		t.Fatalf("got %q", got)
	}
	if _, err := normalizeLanguage("fr"); err == nil {
		t.Fatalf("expected unsupported language to fail")
	}
}

func TestErrorMatching(t *testing.T) {
	err := classify("claim", Errorf(CodeConflict, ReasonAlreadyOwned, "taken"))
	if !errors.Is(err, ErrConflict) || !errors.Is(err, ErrAlreadyOwned) {
		t.Fatalf("expected conflict/already owned: %v", err)
	}
	if errors.Is(err, ErrAlreadyBonded) {
		t.Fatalf("reason must discriminate")
	}
	if ReasonOf(err) != ReasonAlreadyOwned {
		t.Fatalf("reason = %q", ReasonOf(err))
	}
	if err.Error() != "claim: taken" {
		t.Fatalf("message = %q", err.Error())
	}

	raw := errors.New("connection reset")
	wrapped := classify("purchase", raw)
	if CodeOf(wrapped) != CodeUnavailable || !errors.Is(wrapped, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", wrapped)
	}
	if !errors.Is(wrapped, raw) {
		t.Fatalf("cause must stay reachable")
	}
	if classify("noop", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestPartialUpdateApply(t *testing.T) {
	level := int64(0)
	p := Identity{Level: 3}
	if err := (PartialUpdate{Level: &level}).applyTo(&p); err == nil {
		t.Fatalf("expected level below floor to fail")
	}
	name := "Jace"
	vit := int64(40)
	u := PartialUpdate{DisplayName: &name, Vitality: &vit}
	if err := u.applyTo(&p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DisplayName != "Jace" || p.Vitality != 40 || p.Level != 3 {
		t.Fatalf("unexpected identity: %+v", p)
	}
	if got := u.Fields(); len(got) != 2 {
		t.Fatalf("fields = %v", got)
	}
	if !(PartialUpdate{}).Empty() {
		t.Fatalf("zero update must be empty")
	}
}
