package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/card-battle/internal/config"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/battle"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/game/deck"
	"github.com/wfunc/card-battle/internal/game/session"
	"github.com/wfunc/card-battle/internal/repository"
	"github.com/wfunc/card-battle/internal/service"
	ws "github.com/wfunc/card-battle/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APITestSuite 通过完整路由测试HTTP大厅
type APITestSuite struct {
	suite.Suite
	db       *gorm.DB
	cancel   context.CancelFunc
	registry *session.Registry
	engine   *battle.Engine
	router   *Router
}

func (s *APITestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())

	cfg, err := config.Load("")
	s.Require().NoError(err)

	s.db = repository.SetupTestDB()
	catalog := card.Default()
	services := service.NewServices(s.db, cfg.Security, catalog, zap.NewNop())

	s.registry = session.NewRegistry(time.Hour, zap.NewNop())
	s.engine = battle.NewEngine(&battle.EngineConfig{
		Sessions: s.registry,
		Decks:    deck.NewRepositorySource(repository.NewDeckRepository(s.db)),
		Catalog:  catalog,
		Results:  services.Results,
		Shuffle:  func([]card.Card) {},
	})
	hub := ws.NewHub(&ws.HubConfig{
		Battles:           s.engine,
		Sessions:          s.registry,
		HeartbeatInterval: time.Hour,
	})
	dispatcher := ws.NewBattleHandler(hub, s.registry, s.engine, services.Deck, zap.NewNop())
	go hub.Run(ctx)

	s.router = NewRouter(&RouterConfig{
		Config:     cfg,
		DB:         s.db,
		Services:   services,
		Sessions:   s.registry,
		Engine:     s.engine,
		Hub:        hub,
		Dispatcher: dispatcher,
		Catalog:    catalog,
	})
}

func (s *APITestSuite) TearDownTest() {
	s.cancel()
	s.engine.Close()
	repository.CleanupTestDB(s.db)
}

func (s *APITestSuite) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)

	var resp map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func (s *APITestSuite) register(username string) string {
	code, resp := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"password": "secret123",
	})
	s.Require().Equal(http.StatusCreated, code, resp)
	return resp["token"].(string)
}

func (s *APITestSuite) TestHealth() {
	code, resp := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, code)
	s.Equal("healthy", resp["status"])
	s.Equal(true, resp["success"])
}

func (s *APITestSuite) TestUnknownRoute() {
	code, resp := s.do(http.MethodGet, "/api/v1/nope", "", nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal(false, resp["success"])
	s.Equal("not_found", resp["kind"])
}

func (s *APITestSuite) TestRegisterLoginProfile() {
	token := s.register("alice")

	code, resp := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "secret123",
	})
	s.Equal(http.StatusOK, code)
	s.Equal(token, resp["token"])

	code, _ = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice",
		"password": "wrong-password",
	})
	s.Equal(http.StatusUnauthorized, code)

	code, resp = s.do(http.MethodGet, "/api/v1/auth/profile", token, nil)
	s.Equal(http.StatusOK, code)
	user := resp["user"].(map[string]interface{})
	s.Equal("alice", user["username"])
}

func (s *APITestSuite) TestBadRequestBody() {
	code, resp := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "al"})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("invalid_argument", resp["kind"])
}

func (s *APITestSuite) TestProtectedRoutesNeedToken() {
	code, resp := s.do(http.MethodPost, "/api/v1/sessions", "", nil)
	s.Equal(http.StatusUnauthorized, code)
	s.Equal("unauthorized", resp["kind"])

	code, _ = s.do(http.MethodGet, "/api/v1/decks", "", nil)
	s.Equal(http.StatusUnauthorized, code)
}

func (s *APITestSuite) TestCardCatalog() {
	code, resp := s.do(http.MethodGet, "/api/v1/cards", "", nil)
	s.Equal(http.StatusOK, code)
	s.Len(resp["cards"], 10)
}

func (s *APITestSuite) TestSessionLobbyFlow() {
	code, resp := s.do(http.MethodPost, "/api/v1/sessions", "host-1", nil)
	s.Require().Equal(http.StatusCreated, code)
	id := resp["session_id"].(string)

	code, resp = s.do(http.MethodGet, "/api/v1/sessions", "", nil)
	s.Equal(http.StatusOK, code)
	s.EqualValues(1, resp["count"])

	code, resp = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/join", "host-1", nil)
	s.Equal(http.StatusConflict, code)
	s.Equal("conflict", resp["kind"])

	code, resp = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/join", "guest-1", nil)
	s.Require().Equal(http.StatusOK, code)
	sess := resp["session"].(map[string]interface{})
	s.Equal("guest-1", sess["guest_id"])
	s.Equal("ready_for_decks", sess["status"])

	code, _ = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/join", "late-1", nil)
	s.Equal(http.StatusConflict, code)

	code, resp = s.do(http.MethodGet, "/api/v1/sessions", "", nil)
	s.Equal(http.StatusOK, code)
	s.EqualValues(0, resp["count"])
	s.NotNil(resp["sessions"])
}

func (s *APITestSuite) TestSessionNotFound() {
	code, resp := s.do(http.MethodGet, "/api/v1/sessions/missing", "", nil)
	s.Equal(http.StatusNotFound, code)
	s.Equal("not_found", resp["kind"])
}

func (s *APITestSuite) TestBattleSnapshotHidesOpponentHand() {
	id, err := s.registry.CreateSession("host-1")
	s.Require().NoError(err)
	_, err = s.registry.JoinSession(id, "guest-1")
	s.Require().NoError(err)
	_, err = s.engine.StartBattle(context.Background(), id, "", "")
	s.Require().NoError(err)

	code, resp := s.do(http.MethodGet, "/api/v1/battles/"+id, "host-1", nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal("battle_state", resp["type"])

	players := resp["players"].(map[string]interface{})
	s.Len(players, 2)
	for id, raw := range players {
		p := raw.(map[string]interface{})
		if id == "host-1" {
			s.Len(p["hand"], 4)
		} else {
			s.Len(p["hand"], 0)
			s.EqualValues(4, p["hand_count"])
		}
	}

	code, _ = s.do(http.MethodGet, "/api/v1/battles/unknown", "host-1", nil)
	s.Equal(http.StatusNotFound, code)
}

func (s *APITestSuite) TestLeaveForfeitsBattle() {
	id, err := s.registry.CreateSession("host-1")
	s.Require().NoError(err)
	_, err = s.registry.JoinSession(id, "guest-1")
	s.Require().NoError(err)
	_, err = s.engine.StartBattle(context.Background(), id, "", "")
	s.Require().NoError(err)

	code, resp := s.do(http.MethodPost, "/api/v1/sessions/"+id+"/leave", "guest-1", nil)
	s.Require().Equal(http.StatusOK, code, resp)
	s.Equal(id, resp["session_id"])

	_, err = s.engine.GetBattleState(id)
	s.Error(err)

	sess, err := s.registry.GetSession(id)
	s.Require().NoError(err)
	s.Empty(sess.GuestID)
	s.Equal(session.StatusWaiting, sess.Status)
}

func (s *APITestSuite) TestOutsiderLeaveKeepsBattle() {
	id, err := s.registry.CreateSession("host-1")
	s.Require().NoError(err)
	_, err = s.registry.JoinSession(id, "guest-1")
	s.Require().NoError(err)
	_, err = s.engine.StartBattle(context.Background(), id, "", "")
	s.Require().NoError(err)

	code, resp := s.do(http.MethodPost, "/api/v1/sessions/"+id+"/leave", "mallory", nil)
	s.Equal(http.StatusBadRequest, code)
	s.Equal(float64(apperrors.ErrPlayerNotInSession), resp["code"])

	st, err := s.engine.GetBattleState(id)
	s.Require().NoError(err)
	s.False(st.IsFinished)
}

func (s *APITestSuite) TestDeckCRUDAndSelection() {
	token := s.register("bob")

	code, resp := s.do(http.MethodPost, "/api/v1/decks", token, map[string]interface{}{
		"name":  "aggro",
		"cards": []string{"card_008", "card_008", "card_003"},
	})
	s.Require().Equal(http.StatusCreated, code, resp)
	deckID := resp["deck"].(map[string]interface{})["id"].(string)

	code, resp = s.do(http.MethodPost, "/api/v1/decks", token, map[string]interface{}{
		"name":  "broken",
		"cards": []string{"card_999"},
	})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("invalid_argument", resp["kind"])

	code, resp = s.do(http.MethodGet, "/api/v1/decks", token, nil)
	s.Equal(http.StatusOK, code)
	s.Len(resp["decks"], 1)

	code, _ = s.do(http.MethodPut, "/api/v1/decks/"+deckID, token, map[string]interface{}{
		"name":  "aggro v2",
		"cards": []string{"card_008"},
	})
	s.Equal(http.StatusOK, code)

	code, _ = s.do(http.MethodPost, "/api/v1/decks/"+deckID+"/activate", token, nil)
	s.Equal(http.StatusOK, code)

	// 他人的卡组不可见
	code, _ = s.do(http.MethodGet, "/api/v1/decks/"+deckID, "someone-else", nil)
	s.Equal(http.StatusNotFound, code)

	code, resp = s.do(http.MethodPost, "/api/v1/sessions", token, nil)
	s.Require().Equal(http.StatusCreated, code)
	id := resp["session_id"].(string)

	code, resp = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/deck", token, map[string]string{"deck_id": deckID})
	s.Require().Equal(http.StatusOK, code, resp)
	s.Equal(deckID, resp["session"].(map[string]interface{})["host_deck_id"])

	// 客人不能选房主的卡组，默认卡组人人可选
	code, _ = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/join", "guest-2", nil)
	s.Require().Equal(http.StatusOK, code)
	code, resp = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/deck", "guest-2", map[string]string{"deck_id": deckID})
	s.Equal(http.StatusNotFound, code)
	s.Equal("not_found", resp["kind"])
	code, resp = s.do(http.MethodPost, "/api/v1/sessions/"+id+"/deck", "guest-2", map[string]string{"deck_id": deck.DefaultDeckID})
	s.Require().Equal(http.StatusOK, code, resp)
	sess := resp["session"].(map[string]interface{})
	s.Equal(string(session.StatusReady), sess["status"])

	// 没有连接时不开战
	_, err := s.engine.GetBattleState(id)
	s.Error(err)

	code, _ = s.do(http.MethodDelete, "/api/v1/decks/"+deckID, token, nil)
	s.Equal(http.StatusOK, code)
	code, _ = s.do(http.MethodGet, "/api/v1/decks/"+deckID, token, nil)
	s.Equal(http.StatusNotFound, code)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
