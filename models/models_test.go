package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryNames(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"Pothole", CategoryPothole, false},
		{"streetlight", CategoryStreetLight, false},
		{" IllegalDumping ", CategoryIllegalDumping, false},
		{"Street Light", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "Street Light", CategoryStreetLight.DisplayName())
	assert.Len(t, AllCategories(), 8)
	assert.False(t, Category(42).Valid())
}

func TestStatusJSON(t *testing.T) {
	var body struct {
		Status Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"inprogress"}`), &body))
	assert.Equal(t, StatusInProgress, body.Status)
	assert.Equal(t, "In Progress", body.Status.DisplayName())

	out, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"InProgress"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"status":"Resolved"}`), &body))
	_, err = json.Marshal(struct{ S Status }{Status(9)})
	assert.Error(t, err)
}

func TestActorMatches(t *testing.T) {
	user, ip := "user-1", "10.0.0.1"
	byUser := Upvote{UserID: &user}
	byIP := Upvote{IPAddress: &ip}

	tests := []struct {
		name  string
		actor Actor
		vote  Upvote
		want  bool
	}{
		{"user matches own vote", Actor{UserID: user, IPAddress: ip}, byUser, true},
		{"user ignores anonymous vote from same ip", Actor{UserID: user, IPAddress: ip}, byIP, false},
		{"guest matches by ip", Actor{IPAddress: ip}, byIP, true},
		{"guest never matches user vote", Actor{IPAddress: ip}, byUser, false},
		{"unknown actor matches nothing", Actor{}, byIP, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actor.Matches(tt.vote))
		})
	}
}

func TestNewUpvoteSetsOneIdentity(t *testing.T) {
	id := uuid.New()
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	u := Actor{UserID: "user-1", IPAddress: "10.0.0.1"}.NewUpvote(id, now)
	require.NotNil(t, u.UserID)
	assert.Nil(t, u.IPAddress)
	assert.Equal(t, id, u.ServiceRequestID)
	assert.Equal(t, now, u.CreatedAt)

	g := Actor{IPAddress: "10.0.0.1"}.NewUpvote(id, now)
	assert.Nil(t, g.UserID)
	require.NotNil(t, g.IPAddress)
	assert.Equal(t, "10.0.0.1", *g.IPAddress)
}

func TestRequestFilterMatch(t *testing.T) {
	owner := "user-1"
	r := ServiceRequest{Category: CategoryGraffiti, Status: StatusOpen, SubmittedByID: &owner}
	open, closed := StatusOpen, StatusClosed
	graffiti := CategoryGraffiti
	other := "user-2"

	assert.True(t, RequestFilter{}.Match(r))
	assert.True(t, RequestFilter{Status: &open, Category: &graffiti, SubmittedByID: &owner}.Match(r))
	assert.False(t, RequestFilter{Status: &closed}.Match(r))
	assert.False(t, RequestFilter{SubmittedByID: &other}.Match(r))
	assert.False(t, RequestFilter{SubmittedByID: &owner}.Match(ServiceRequest{}))
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortUpvotesDesc, ParseSortKey("UPVOTES_DESC"))
	assert.Equal(t, SortCreatedAtAsc, ParseSortKey("createdAt_asc"))
	assert.Equal(t, DefaultSort, ParseSortKey("popularity"))
	assert.Equal(t, DefaultSort, ParseSortKey(""))
}

func TestUserPasswordAndRoles(t *testing.T) {
	u := &User{Email: "clerk@city.gov", Password: "secret1", Roles: ParseRoles([]string{"Staff", "Mayor", " Admin"})}
	require.NoError(t, u.HashPassword())
	assert.NotEqual(t, "secret1", u.Password)
	assert.True(t, u.ComparePassword("secret1"))
	assert.False(t, u.ComparePassword("secret2"))

	assert.Equal(t, []string{"Staff", "Admin"}, RoleNames(u.Roles))
	assert.True(t, u.HasRole(RoleCitizen, RoleAdmin))
	assert.False(t, u.HasRole(RoleCitizen))
	assert.Equal(t, "clerk@city.gov", u.DisplayName())

	u.FirstName = "Pat"
	assert.Equal(t, "Pat", u.DisplayName())
}
