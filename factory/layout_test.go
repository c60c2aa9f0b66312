package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/seat-engine/seating"
)

func TestParseOffice_ExplicitSeats(t *testing.T) {
	// GIVEN: two seats, one owned, and two users
	data := []byte(`{
		"name": "HQ",
		"seats": [
			{"number": "D001", "type": "designated", "batch": 1, "squad": 2, "owner": "ada"},
			{"number": "F001", "type": "Floating"}
		],
		"users": [
			{"id": "ada", "name": "Ada", "batch": 1, "squad": 2},
			{"id": "boss", "batch": 2, "squad": 1, "role": "admin"}
		]
	}`)

	// WHEN
	office, err := NewLayoutFactory().ParseOffice(data)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, "HQ", office.Name)
	require.Len(t, office.Seats, 2)
	assert.Equal(t, seating.SeatIDFor("D001"), office.Seats[0].ID)
	assert.Equal(t, seating.UserID("ada"), office.Seats[0].OwnerID)
	assert.Equal(t, seating.Squad(2), office.Seats[0].Squad)
	assert.Equal(t, seating.KindFloating, office.Seats[1].Kind)

	require.Len(t, office.Users, 2)
	assert.Equal(t, seating.SeatIDFor("D001"), office.Users[0].DesignatedSeatID)
	assert.Equal(t, seating.RoleAdmin, office.Users[1].Role)
	assert.Equal(t, "boss", office.Users[1].Name)
}

func TestParseOffice_Generate(t *testing.T) {
	office, err := NewLayoutFactory().ParseOffice([]byte(`{"generate": {"seats_per_squad": 4, "floating": 10}}`))
	require.NoError(t, err)

	// Same shape as the built-in floor
	assert.Equal(t, seating.DefaultLayout(), office.Seats)
	assert.Empty(t, office.Users)
}

func TestParseOffice_Errors(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{"not json", `{`, "invalid layout JSON"},
		{"empty", `{}`, "no seats"},
		{"both sources", `{"seats":[{"number":"F1","type":"floating"}],"generate":{"floating":1}}`, "mutually exclusive"},
		{"unknown kind", `{"seats":[{"number":"X1","type":"standing"}]}`, "unknown seat kind"},
		{"bad batch", `{"seats":[{"number":"D1","type":"designated","batch":3,"squad":1}]}`, "invalid batch"},
		{"floating with owner", `{"seats":[{"number":"F1","type":"floating","owner":"x"}]}`, "cannot have"},
		{"duplicate number", `{"seats":[{"number":"F1","type":"floating"},{"number":"F1","type":"floating"}]}`, "duplicate number"},
		{"unknown owner", `{"seats":[{"number":"D1","type":"designated","batch":1,"squad":1,"owner":"ghost"}]}`, "not a listed user"},
		{"two seats one owner", `{
			"seats":[
				{"number":"D1","type":"designated","batch":1,"squad":1,"owner":"ada"},
				{"number":"D2","type":"designated","batch":1,"squad":1,"owner":"ada"}],
			"users":[{"id":"ada","batch":1,"squad":1}]}`, "already has seat"},
		{"bad role", `{"seats":[{"number":"F1","type":"floating"}],"users":[{"id":"a","batch":1,"squad":1,"role":"root"}]}`, "unknown role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayoutFactory().ParseOffice([]byte(tt.json))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
