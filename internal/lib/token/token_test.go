package token

import (
	"testing"
	"time"

	"github.com/deppfellow/erm/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser() *model.User {
	return &model.User{
		Base:  model.Base{ID: uuid.New()},
		Email: "hr@example.com",
		Role:  model.RoleHR,
	}
}

func TestIssueAndParse(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	m := NewManager(testSecret, "erm", time.Hour, clock)
	user := testUser()

	raw, expiresAt, err := m.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), expiresAt)

	claims, err := m.Parse(raw)
	require.NoError(t, err)

	actor, err := claims.Actor()
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: user.ID, Role: model.RoleHR, Email: "hr@example.com"}, actor)
}

func TestParseExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(testSecret, "erm", time.Hour, clock)

	raw, _, err := m.Issue(testUser())
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseRejectsForeignTokens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(testSecret, "erm", time.Hour, clock)

	t.Run("other secret", func(t *testing.T) {
		other := NewManager("ffffffffffffffffffffffffffffffff", "erm", time.Hour, clock)
		raw, _, err := other.Issue(testUser())
		require.NoError(t, err)

		_, err = m.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other := NewManager(testSecret, "someone-else", time.Hour, clock)
		raw, _, err := other.Issue(testUser())
		require.NoError(t, err)

		_, err = m.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			Role: model.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "erm",
				ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
			},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestClaimsActorBadSubject(t *testing.T) {
	c := &Claims{Role: model.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Subject: "42"}}
	_, err := c.Actor()
	assert.ErrorIs(t, err, ErrInvalidToken)
}
