package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ecoproof-backend/internal/ledger"
	"ecoproof-backend/internal/models"
	"ecoproof-backend/internal/repository"
	"ecoproof-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubLedger struct {
	err   error
	calls int
}

func (s *stubLedger) Transfer(context.Context, ledger.TransferRequest) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "tx-9", nil
}

type testAPI struct {
	srv    *httptest.Server
	clock  *testClock
	users  *services.UserDirectory
	hub    *services.EventHub
	tokens map[string]string
}

func newTestAPI(t *testing.T, transfers services.Transferrer) *testAPI {
	t.Helper()
	clock := &testClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore()

	challenges := services.NewChallengeRegistry(store, clock.Now)
	submissions := services.NewSubmissionStore(store, challenges, services.SubmissionConfig{}, clock.Now)
	votes := services.NewVoteLedger(store, submissions)
	submissions.SetTallier(votes)
	users := services.NewUserDirectory(store)
	tokens := services.NewTokenService("test-secret", time.Hour, clock.Now)
	hub := services.NewEventHub(clock.Now)
	rewards := services.NewRewardEngine(submissions, votes, users, transfers, services.NewLocalReserver(), services.RewardConfig{}, clock.Now)

	router := NewRouter(Handlers{
		Users:       NewUserHandler(users, tokens),
		Submissions: NewSubmissionHandler(submissions, rewards, hub),
		Votes:       NewVoteHandler(votes, submissions, hub),
		Challenges:  NewChallengeHandler(challenges),
		Evidence:    NewEvidenceHandler(nil),
		Weather:     NewWeatherHandler(nil, nil),
		WebSocket:   NewWebSocketHandler(hub, tokens),
	}, tokens, users)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, clock: clock, users: users, hub: hub, tokens: map[string]string{}}
}

// do sends a request as user (empty for anonymous) and decodes the JSON answer into out
func (a *testAPI) do(t *testing.T, user, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+a.login(t, user))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// login syncs a profile for user once and returns its token
func (a *testAPI) login(t *testing.T, user string) string {
	t.Helper()
	if tok, ok := a.tokens[user]; ok {
		return tok
	}
	var session SessionResponse
	status := a.do(t, "", http.MethodPost, "/api/v1/users", models.Profile{ID: user}, &session)
	require.Equal(t, http.StatusOK, status)
	a.tokens[user] = session.Token
	return session.Token
}

func (a *testAPI) submit(t *testing.T, user string, req services.SubmitRequest) int64 {
	t.Helper()
	var out map[string]int64
	require.Equal(t, http.StatusCreated, a.do(t, user, http.MethodPost, "/api/v1/submissions", req, &out))
	return out["data_id"]
}

var denver = models.Coordinates{Latitude: 39.7791, Longitude: -104.9707}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, nil)
	var out map[string]string
	assert.Equal(t, http.StatusOK, api.do(t, "", http.MethodGet, "/healthz", nil, &out))
	assert.Equal(t, "ok", out["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t, nil)
	var out ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, api.do(t, "", http.MethodGet, "/api/v1/submissions", nil, &out))
}

func TestUserEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)

	var session SessionResponse
	first := "Alice"
	require.Equal(t, http.StatusOK, api.do(t, "", http.MethodPost, "/api/v1/users",
		models.Profile{ID: "alice", FirstName: &first}, &session))
	assert.Equal(t, "alice", session.User.ID)
	require.NotEmpty(t, session.Token)
	api.tokens["alice"] = session.Token

	assert.Equal(t, http.StatusNoContent, api.do(t, "alice", http.MethodPut, "/api/v1/users/me/wallet",
		map[string]string{"wallet_address": "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"}, nil))

	var user models.User
	require.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodGet, "/api/v1/users/alice", nil, &user))
	require.NotNil(t, user.WalletAddress)
	assert.Equal(t, "Alice", *user.FirstName)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusNotFound, api.do(t, "alice", http.MethodGet, "/api/v1/users/ghost", nil, &errResp))
	assert.Equal(t, string(models.KindNotFound), errResp.Kind)

	var balance map[string]any
	require.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodGet, "/api/v1/users/alice/balance", nil, &balance))
	assert.Equal(t, float64(0), balance["balance"])

	var all []models.User
	api.login(t, "bob")
	require.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodGet, "/api/v1/users", nil, &all))
	assert.Len(t, all, 2)
}

func TestRolesAndAdminRoutes(t *testing.T) {
	api := newTestAPI(t, nil)
	api.login(t, "alice")
	api.login(t, "bob")

	challenge := CreateChallengeBody{Title: "Denver", Latitude: denver.Latitude, Longitude: denver.Longitude, RadiusM: 500, DurationSeconds: 3600}

	var errResp ErrorResponse
	assert.Equal(t, http.StatusForbidden, api.do(t, "alice", http.MethodPost, "/api/v1/challenges", challenge, &errResp))

	// first admin is bootstrapped
	assert.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodPut, "/api/v1/users/alice/role", map[string]string{"role": "admin"}, nil))
	assert.Equal(t, http.StatusForbidden, api.do(t, "bob", http.MethodPut, "/api/v1/users/bob/role", map[string]string{"role": "Admin"}, &errResp))
	assert.Equal(t, http.StatusBadRequest, api.do(t, "alice", http.MethodPut, "/api/v1/users/bob/role", map[string]string{"role": "king"}, &errResp))

	var created models.Challenge
	require.Equal(t, http.StatusCreated, api.do(t, "alice", http.MethodPost, "/api/v1/challenges", challenge, &created))
	assert.Equal(t, int64(1), created.ID)

	assert.Equal(t, http.StatusForbidden, api.do(t, "bob", http.MethodPost, "/api/v1/challenges", challenge, &errResp))

	var bad ErrorResponse
	assert.Equal(t, http.StatusBadRequest, api.do(t, "alice", http.MethodPost, "/api/v1/challenges",
		CreateChallengeBody{Title: "x", RadiusM: -1, DurationSeconds: 10}, &bad))
}

func TestSubmissionVoteRewardFlow(t *testing.T) {
	api := newTestAPI(t, nil)

	id := api.submit(t, "alice", services.SubmitRequest{Coordinates: denver, City: "Denver", Temperature: 20, Weather: "Clear"})
	assert.Equal(t, int64(1), id)

	for _, voter := range []string{"bob", "carol", "dave"} {
		var summary models.VoteSummary
		require.Equal(t, http.StatusCreated, api.do(t, voter, http.MethodPost, "/api/v1/submissions/1/votes", map[string]bool{"vote_value": true}, &summary))
	}

	var errResp ErrorResponse
	assert.Equal(t, http.StatusConflict, api.do(t, "bob", http.MethodPost, "/api/v1/submissions/1/votes", map[string]bool{"vote_value": false}, &errResp))
	assert.Equal(t, http.StatusBadRequest, api.do(t, "erin", http.MethodPost, "/api/v1/submissions/1/votes", map[string]any{}, &errResp))
	assert.Equal(t, http.StatusNotFound, api.do(t, "erin", http.MethodPost, "/api/v1/submissions/9/votes", map[string]bool{"vote_value": true}, &errResp))

	assert.Equal(t, http.StatusNotFound, api.do(t, "erin", http.MethodPut, "/api/v1/submissions/1/votes", map[string]bool{"vote_value": true}, &errResp))

	var summary models.VoteSummary
	require.Equal(t, http.StatusOK, api.do(t, "carol", http.MethodPut, "/api/v1/submissions/1/votes", map[string]bool{"vote_value": false}, &summary))
	assert.Equal(t, models.VoteSummary{SubmissionID: 1, Upvotes: 2, Downvotes: 1}, summary)

	var fin services.FinalizeResult
	require.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodPost, "/api/v1/submissions/1/finalize", nil, &fin))
	assert.False(t, fin.Changed)
	assert.Equal(t, models.StatusOpen, fin.Status)

	api.clock.Advance(services.DefaultSubmissionTTL)
	require.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodPost, "/api/v1/submissions/1/finalize", nil, &fin))
	assert.True(t, fin.Changed)
	assert.Equal(t, models.StatusPending, fin.Status)

	assert.Equal(t, http.StatusConflict, api.do(t, "alice", http.MethodPost, "/api/v1/submissions/1/finalize", nil, &errResp))

	// no ledger configured: reward credits the in-app balance
	var conf services.Confirmation
	require.Equal(t, http.StatusOK, api.do(t, "bob", http.MethodPost, "/api/v1/submissions/1/reward", nil, &conf))
	assert.Equal(t, uint64(10), conf.Balance)
	assert.Equal(t, uint64(10), api.users.Balance("alice"))

	assert.Equal(t, http.StatusConflict, api.do(t, "bob", http.MethodPost, "/api/v1/submissions/1/reward", nil, &errResp))
	assert.Equal(t, string(models.KindConflict), errResp.Kind)

	var status struct {
		SubmissionID int64             `json:"data_id"`
		Status       models.PostStatus `json:"status"`
	}
	require.Equal(t, http.StatusOK, api.do(t, "bob", http.MethodGet, "/api/v1/submissions/1/status", nil, &status))
	assert.Equal(t, int64(1), status.SubmissionID)
	assert.Equal(t, models.StatusPaid, status.Status)

	var rewarded []models.Submission
	require.Equal(t, http.StatusOK, api.do(t, "bob", http.MethodGet, "/api/v1/users/alice/submissions/rewarded", nil, &rewarded))
	assert.Len(t, rewarded, 1)

	var board []models.VoteSummary
	require.Equal(t, http.StatusOK, api.do(t, "bob", http.MethodGet, "/api/v1/leaderboard?by=upvotes&limit=5", nil, &board))
	require.Len(t, board, 1)
	assert.Equal(t, 2, board[0].Upvotes)
}

func TestRewardErrorsMapToStatus(t *testing.T) {
	l := &stubLedger{err: &ledger.TransferError{Kind: ledger.TemporarilyUnavailable}}
	api := newTestAPI(t, l)

	id := api.submit(t, "alice", services.SubmitRequest{Coordinates: denver})
	var errResp ErrorResponse

	// tie: majority invalid
	require.Equal(t, http.StatusCreated, api.do(t, "bob", http.MethodPost, "/api/v1/submissions/1/votes", map[string]bool{"vote_value": true}, nil))
	require.Equal(t, http.StatusCreated, api.do(t, "carol", http.MethodPost, "/api/v1/submissions/1/votes", map[string]bool{"vote_value": false}, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, api.do(t, "bob", http.MethodPost, "/api/v1/submissions/1/reward", nil, &errResp))

	require.Equal(t, http.StatusOK, api.do(t, "carol", http.MethodDelete, "/api/v1/submissions/1/votes", nil, nil))

	// no wallet registered
	assert.Equal(t, http.StatusBadRequest, api.do(t, "bob", http.MethodPost, "/api/v1/submissions/1/reward", nil, &errResp))
	assert.Equal(t, string(models.KindInvalidInput), errResp.Kind)

	require.Equal(t, http.StatusNoContent, api.do(t, "alice", http.MethodPut, "/api/v1/users/me/wallet",
		map[string]string{"wallet_address": "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"}, nil))
	assert.Equal(t, http.StatusBadGateway, api.do(t, "bob", http.MethodPost, "/api/v1/submissions/1/reward", nil, &errResp))
	assert.Equal(t, string(models.KindDependencyFailure), errResp.Kind)
	assert.Equal(t, 1, l.calls)

	l.err = nil
	var conf services.Confirmation
	require.Equal(t, http.StatusOK, api.do(t, "bob", http.MethodPost, "/api/v1/submissions/1/reward", nil, &conf))
	assert.Equal(t, "tx-9", conf.TransactionRef)
	assert.Equal(t, id, conf.SubmissionID)
}

func TestChallengeEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	require.Equal(t, http.StatusOK, api.do(t, "admin", http.MethodPut, "/api/v1/users/admin/role", map[string]string{"role": "Admin"}, nil))

	var c models.Challenge
	require.Equal(t, http.StatusCreated, api.do(t, "admin", http.MethodPost, "/api/v1/challenges",
		CreateChallengeBody{Title: "Denver", Latitude: denver.Latitude, Longitude: denver.Longitude, RadiusM: 500, DurationSeconds: 600}, &c))

	cid := c.ID
	inside := api.submit(t, "alice", services.SubmitRequest{Coordinates: denver, ChallengeID: &cid})

	var errResp ErrorResponse
	far := services.SubmitRequest{Coordinates: models.Coordinates{Latitude: 40.0150, Longitude: -105.2705}, ChallengeID: &cid}
	assert.Equal(t, http.StatusUnprocessableEntity, api.do(t, "alice", http.MethodPost, "/api/v1/submissions", far, &errResp))

	var list []models.Challenge
	require.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodGet, "/api/v1/challenges/active?lat=39.7791&lon=-104.9707", nil, &list))
	assert.Len(t, list, 1)
	require.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodGet, "/api/v1/challenges/nearby?lat=40.0150&lon=-105.2705&radius=1000", nil, &list))
	assert.Empty(t, list)
	require.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodGet, "/api/v1/challenges/expiring?within=15m", nil, &list))
	assert.Len(t, list, 1)
	assert.Equal(t, http.StatusBadRequest, api.do(t, "alice", http.MethodGet, "/api/v1/challenges/nearby?lat=x&lon=1&radius=1", nil, &errResp))

	var subs []models.Submission
	require.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodGet, "/api/v1/challenges/1/submissions?user=alice", nil, &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, inside, subs[0].ID)

	var exp []models.Submission
	require.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodGet, "/api/v1/submissions/expirations?within=300", nil, &exp))
	assert.Len(t, exp, 1)
}

func TestUnconfiguredFeatures(t *testing.T) {
	api := newTestAPI(t, nil)
	var errResp ErrorResponse
	assert.Equal(t, http.StatusServiceUnavailable, api.do(t, "alice", http.MethodPost, "/api/v1/evidence/upload", map[string]string{}, &errResp))
	assert.Equal(t, http.StatusServiceUnavailable, api.do(t, "alice", http.MethodGet, "/api/v1/weather?city=Denver", nil, &errResp))

	var latest []any
	assert.Equal(t, http.StatusOK, api.do(t, "alice", http.MethodGet, "/api/v1/weather/latest", nil, &latest))
	assert.Empty(t, latest)
}

func TestWebSocketReceivesVoteEvents(t *testing.T) {
	api := newTestAPI(t, nil)
	api.submit(t, "alice", services.SubmitRequest{Coordinates: denver})

	wsURL := "ws" + strings.TrimPrefix(api.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+api.login(t, "alice"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return api.hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusCreated, api.do(t, "bob", http.MethodPost, "/api/v1/submissions/1/votes", map[string]bool{"vote_value": true}, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event struct {
		Type         string             `json:"type"`
		SubmissionID int64              `json:"data_id"`
		Data         models.VoteSummary `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, services.EventVoteCast, event.Type)
	assert.Equal(t, int64(1), event.SubmissionID)
	assert.Equal(t, 1, event.Data.Upvotes)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(models.KindOf(errors.New("boom"))))
	assert.Equal(t, http.StatusForbidden, statusFor(models.KindForbidden))
}
