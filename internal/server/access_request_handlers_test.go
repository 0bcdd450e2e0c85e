package server

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"atrium/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewFixture struct {
	env       *testEnv
	member    string
	pm        string
	otherPM   string
	admin     string
	requestID uint
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	env := newTestEnv(t)
	env.createUser(t, 1, "mona", "+15550000001", models.RoleMember)
	env.createUser(t, 2, "pat", "+15550000002", models.RoleProjectManager)
	env.createUser(t, 3, "quinn", "+15550000003", models.RoleProjectManager)
	env.createUser(t, 4, "root", "+15550000004", models.RoleAdmin)

	f := &reviewFixture{
		env:     env,
		member:  env.tokenFor(t, 1),
		pm:      env.tokenFor(t, 2),
		otherPM: env.tokenFor(t, 3),
		admin:   env.tokenFor(t, 4),
	}

	status, body := env.do(t, http.MethodPost, "/api/projects/7/access-requests", f.member,
		map[string]string{"pm_name": "pat", "description": "need the design docs"})
	require.Equal(t, http.StatusCreated, status, "body: %s", body)
	flags := decode[map[string]interface{}](t, body)
	assert.Equal(t, false, flags["allowed"])
	assert.Equal(t, false, flags["updated"])
	created := decode[models.AccessRequest](t, body)
	assert.Equal(t, models.DecisionPending, created.Decision)
	assert.EqualValues(t, 1, created.RequesterID)
	assert.EqualValues(t, 7, created.ProjectID)
	f.requestID = created.ID
	return f
}

func (f *reviewFixture) path(suffix string) string {
	return fmt.Sprintf("/api/access-requests/%d%s", f.requestID, suffix)
}

func TestCreateAccessRequestHandler(t *testing.T) {
	f := newReviewFixture(t)
	env := f.env

	status, body := env.do(t, http.MethodPost, "/api/projects/7/access-requests", f.member,
		map[string]string{"pm_name": "pat", "description": "again"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, models.CodeConflict, decode[models.ErrorResponse](t, body).Code)

	status, _ = env.do(t, http.MethodPost, "/api/projects/8/access-requests", f.member,
		map[string]string{"pm_name": "pat"})
	assert.Equal(t, http.StatusCreated, status)

	status, _ = env.do(t, http.MethodPost, "/api/projects/9/access-requests", "",
		map[string]string{"pm_name": "pat"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = env.do(t, http.MethodPost, "/api/projects/abc/access-requests", f.member,
		map[string]string{"pm_name": "pat"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid project ID", decode[models.ErrorResponse](t, body).Error)

	status, _ = env.do(t, http.MethodPost, "/api/projects/9/access-requests", f.member,
		map[string]string{"pm_name": ""})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDecideAccessRequestHandler(t *testing.T) {
	f := newReviewFixture(t)
	env := f.env

	status, _ := env.do(t, http.MethodPost, f.path("/decision"), f.member, map[string]bool{"allowed": true})
	assert.Equal(t, http.StatusForbidden, status, "members lack the reviewer role")

	status, _ = env.do(t, http.MethodPost, f.path("/decision"), f.otherPM, map[string]bool{"allowed": true})
	assert.Equal(t, http.StatusForbidden, status, "only the named reviewer may decide")

	status, _ = env.do(t, http.MethodPost, f.path("/decision"), f.pm, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := env.do(t, http.MethodPost, f.path("/decision"), f.pm, map[string]bool{"allowed": false})
	require.Equal(t, http.StatusOK, status, "body: %s", body)
	flags := decode[map[string]interface{}](t, body)
	assert.Equal(t, false, flags["allowed"])
	assert.Equal(t, true, flags["updated"])
	decided := decode[models.AccessRequest](t, body)
	assert.Equal(t, models.DecisionDenied, decided.Decision)
	assert.False(t, decided.PMNotified)
	require.NotNil(t, decided.DecidedByUserID)
	assert.EqualValues(t, 2, *decided.DecidedByUserID)

	status, body = env.do(t, http.MethodPost, f.path("/decision"), f.admin, map[string]bool{"allowed": true})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, models.CodeConflict, decode[models.ErrorResponse](t, body).Code)

	status, _ = env.do(t, http.MethodPost, "/api/access-requests/999/decision", f.admin, map[string]bool{"allowed": true})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	f := newReviewFixture(t)

	var wg sync.WaitGroup
	statuses := make(chan int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(allowed bool) {
			defer wg.Done()
			status, _ := f.env.do(t, http.MethodPost, f.path("/decision"), f.pm, map[string]bool{"allowed": allowed})
			statuses <- status
		}(i%2 == 0)
	}
	wg.Wait()
	close(statuses)

	counts := map[int]int{}
	for s := range statuses {
		counts[s]++
	}
	assert.Equal(t, 1, counts[http.StatusOK])
	assert.Equal(t, 7, counts[http.StatusConflict])
}

func TestUnreadAndAcknowledgeHandlers(t *testing.T) {
	f := newReviewFixture(t)
	env := f.env

	status, _ := env.do(t, http.MethodPost, f.path("/acknowledge"), f.pm, nil)
	assert.Equal(t, http.StatusConflict, status, "pending requests cannot be acknowledged")

	status, _ = env.do(t, http.MethodPost, f.path("/decision"), f.pm, map[string]bool{"allowed": true})
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodGet, "/api/access-requests/unread", f.pm, nil)
	require.Equal(t, http.StatusOK, status)
	unread := decode[[]models.AccessRequest](t, body)
	require.Len(t, unread, 1)
	assert.Equal(t, f.requestID, unread[0].ID)
	assert.True(t, unread[0].Allowed())

	// Another reviewer sees nothing, an admin can look on pat's behalf.
	status, body = env.do(t, http.MethodGet, "/api/access-requests/unread", f.otherPM, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.AccessRequest](t, body))
	status, body = env.do(t, http.MethodGet, "/api/access-requests/unread?pm_name=pat", f.admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.AccessRequest](t, body), 1)

	status, _ = env.do(t, http.MethodPost, f.path("/acknowledge"), f.otherPM, nil)
	assert.Equal(t, http.StatusForbidden, status)

	for i := 0; i < 2; i++ {
		status, _ = env.do(t, http.MethodPost, f.path("/acknowledge"), f.pm, nil)
		assert.Equal(t, http.StatusNoContent, status)
	}

	status, body = env.do(t, http.MethodGet, "/api/access-requests/unread", f.pm, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.AccessRequest](t, body))

	status, _ = env.do(t, http.MethodGet, "/api/access-requests/unread", f.member, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestPendingAccessRequestsHandler(t *testing.T) {
	f := newReviewFixture(t)
	env := f.env
	for project := 20; project < 25; project++ {
		status, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/projects/%d/access-requests", project), f.member,
			map[string]string{"pm_name": "quinn"})
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := env.do(t, http.MethodGet, "/api/access-requests/pending?limit=4&offset=0", f.pm, nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[struct {
		Items  []models.AccessRequest `json:"items"`
		Total  int64                  `json:"total"`
		Limit  int                    `json:"limit"`
		Offset int                    `json:"offset"`
	}](t, body)
	assert.EqualValues(t, 6, page.Total)
	assert.Equal(t, 4, page.Limit)
	require.Len(t, page.Items, 4)
	for i := 1; i < len(page.Items); i++ {
		assert.Less(t, page.Items[i-1].ID, page.Items[i].ID)
	}
	assert.Equal(t, f.requestID, page.Items[0].ID)

	status, body = env.do(t, http.MethodGet, "/api/access-requests/pending?limit=4&offset=4", f.admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[struct {
		Items []models.AccessRequest `json:"items"`
	}](t, body).Items, 2)

	status, _ = env.do(t, http.MethodGet, "/api/access-requests/pending", f.member, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = env.do(t, http.MethodGet, "/api/access-requests/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestWithdrawAndMineHandlers(t *testing.T) {
	f := newReviewFixture(t)
	env := f.env

	status, body := env.do(t, http.MethodGet, "/api/access-requests/mine", f.member, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.AccessRequest](t, body), 1)

	status, _ = env.do(t, http.MethodDelete, f.path(""), f.pm, nil)
	assert.Equal(t, http.StatusForbidden, status, "only the requester may withdraw")

	status, _ = env.do(t, http.MethodDelete, f.path(""), f.member, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = env.do(t, http.MethodDelete, f.path(""), f.member, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = env.do(t, http.MethodGet, "/api/access-requests/mine", f.member, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]models.AccessRequest](t, body))

	// Withdrawing frees the slot for a new request on the same project.
	status, _ = env.do(t, http.MethodPost, "/api/projects/7/access-requests", f.member,
		map[string]string{"pm_name": "pat"})
	assert.Equal(t, http.StatusCreated, status)
}

func TestRevokedTokenLosesAccess(t *testing.T) {
	f := newReviewFixture(t)
	env := f.env

	status, _ := env.do(t, http.MethodPost, "/api/auth/logout", f.pm, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = env.do(t, http.MethodPost, f.path("/decision"), f.pm, map[string]bool{"allowed": true})
	assert.Equal(t, http.StatusUnauthorized, status)
}
