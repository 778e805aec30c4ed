package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/battle"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/game/deck"
	"github.com/wfunc/card-battle/internal/game/session"
	"go.uber.org/zap"
)

func keepOrder([]card.Card) {}

// ownedDecks 卡组ID到持有者
type ownedDecks map[string]string

func (d ownedDecks) CheckSelectable(_ context.Context, userID, deckID string) error {
	if deckID == deck.DefaultDeckID || d[deckID] == userID {
		return nil
	}
	return apperrors.Newf(apperrors.ErrDeckNotFound, "Deck not found: %s", deckID)
}

// BattleHandlerTestSuite 通过真实WebSocket连接测试协议分发
type BattleHandlerTestSuite struct {
	suite.Suite
	cancel    context.CancelFunc
	registry  *session.Registry
	engine    *battle.Engine
	hub       *Hub
	handler   *BattleHandler
	server    *httptest.Server
	sessionID string
}

func (s *BattleHandlerTestSuite) SetupTest() {
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())

	s.registry = session.NewRegistry(time.Hour, zap.NewNop())
	s.engine = battle.NewEngine(&battle.EngineConfig{
		Sessions: s.registry,
		Shuffle:  keepOrder,
	})
	s.hub = NewHub(&HubConfig{
		Battles:           s.engine,
		Sessions:          s.registry,
		HeartbeatInterval: time.Hour,
	})
	decks := ownedDecks{"alice-burn": "alice", "bob-control": "bob"}
	s.handler = NewBattleHandler(s.hub, s.registry, s.engine, decks, zap.NewNop())
	go s.hub.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.hub.ServeConn(conn, ClientOptions{AuthUserID: r.URL.Query().Get("user")})
	}))

	id, err := s.registry.CreateSession("alice")
	s.Require().NoError(err)
	s.sessionID = id
}

func (s *BattleHandlerTestSuite) TearDownTest() {
	s.server.Close()
	s.cancel()
	s.engine.Close()
}

func (s *BattleHandlerTestSuite) dial(query string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })
	return conn
}

func (s *BattleHandlerTestSuite) send(conn *websocket.Conn, msg map[string]interface{}) {
	s.Require().NoError(conn.WriteJSON(msg))
}

// expect 读取直到出现指定类型的消息
func (s *BattleHandlerTestSuite) expect(conn *websocket.Conn, typ string) map[string]interface{} {
	s.T().Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		s.Require().NoError(conn.SetReadDeadline(deadline))
		var m map[string]interface{}
		s.Require().NoError(conn.ReadJSON(&m), "waiting for %s", typ)
		if m["type"] == typ {
			return m
		}
	}
}

// expectBattle 读取直到last_action满足条件的对战快照
func (s *BattleHandlerTestSuite) expectBattle(conn *websocket.Conn, match func(map[string]interface{}) bool) map[string]interface{} {
	s.T().Helper()
	for {
		m := s.expect(conn, TypeBattleState)
		if match(m) {
			return m
		}
	}
}

func (s *BattleHandlerTestSuite) join(conn *websocket.Conn, userID string) {
	s.send(conn, map[string]interface{}{"action": ActionJoinSession, "session_id": s.sessionID, "user_id": userID})
	m := s.expect(conn, TypeConnectionEstablished)
	s.Equal(userID, m["user_id"])
}

func (s *BattleHandlerTestSuite) selectDeck(conn *websocket.Conn, deckID string) {
	s.send(conn, map[string]interface{}{"action": ActionSelectDeck, "deck_id": deckID})
}

// startBattle 双方加入并选定默认卡组，返回各自连接
func (s *BattleHandlerTestSuite) startBattle() (*websocket.Conn, *websocket.Conn) {
	host := s.dial("")
	s.join(host, "alice")
	guest := s.dial("")
	s.join(guest, "bob")
	s.selectDeck(host, deck.DefaultDeckID)
	s.selectDeck(guest, deck.DefaultDeckID)
	s.expect(host, TypeBattleState)
	s.expect(guest, TypeBattleState)
	return host, guest
}

func player(m map[string]interface{}, id string) map[string]interface{} {
	return m["players"].(map[string]interface{})[id].(map[string]interface{})
}

func (s *BattleHandlerTestSuite) TestBattleWaitsForDecks() {
	host := s.dial("")
	s.join(host, "alice")
	update := s.expect(host, TypeSessionUpdate)
	s.Equal(string(session.StatusWaiting), update["status"])

	guest := s.dial("")
	s.join(guest, "bob")
	s.expectSessionStatus(host, session.StatusReadyForDecks)

	// 双方连接已到齐但卡组未选
	_, err := s.engine.GetBattleState(s.sessionID)
	s.True(apperrors.Is(err, apperrors.ErrBattleNotFound))
	s.send(guest, map[string]interface{}{"action": ActionGetBattleState})
	notReady := s.expect(guest, TypeError)
	s.Equal(float64(apperrors.ErrSessionNotReady), notReady["code"])
	s.Equal(string(apperrors.KindRuleViolation), notReady["kind"])

	s.selectDeck(host, "alice-burn")
	s.expectSessionStatus(guest, session.StatusReadyForDecks)
	_, err = s.engine.GetBattleState(s.sessionID)
	s.True(apperrors.Is(err, apperrors.ErrBattleNotFound))

	s.selectDeck(guest, deck.DefaultDeckID)
	hostView := s.expect(host, TypeBattleState)
	guestView := s.expect(guest, TypeBattleState)
	s.Equal("alice", hostView["current_turn"])
	s.Equal(float64(1), hostView["turn_number"])
	s.Len(player(hostView, "alice")["hand"], 4)
	s.Len(player(hostView, "bob")["hand"], 0)
	s.Equal(float64(4), player(hostView, "bob")["hand_count"])
	s.Equal(map[string]interface{}{"count": float64(6)}, player(hostView, "alice")["deck"])
	s.Len(player(guestView, "bob")["hand"], 4)
	s.Len(player(guestView, "alice")["hand"], 0)

	sess, err := s.registry.GetSession(s.sessionID)
	s.Require().NoError(err)
	s.Equal(session.StatusActive, sess.Status)
	s.Equal("alice-burn", sess.HostDeckID)
}

func (s *BattleHandlerTestSuite) TestBattleStartsWhenLastSocketJoins() {
	host := s.dial("")
	s.join(host, "alice")

	// 客人通过HTTP加入并选好卡组，但尚未连接
	_, err := s.registry.JoinSession(s.sessionID, "bob")
	s.Require().NoError(err)
	_, err = s.registry.SetDeckSelection(s.sessionID, "bob", deck.DefaultDeckID)
	s.Require().NoError(err)
	s.selectDeck(host, deck.DefaultDeckID)
	s.expectSessionStatus(host, session.StatusReady)
	_, err = s.engine.GetBattleState(s.sessionID)
	s.True(apperrors.Is(err, apperrors.ErrBattleNotFound))

	guest := s.dial("")
	s.join(guest, "bob")
	s.expect(host, TypeBattleState)
	s.expect(guest, TypeBattleState)
}

func (s *BattleHandlerTestSuite) TestStartIfReadyAfterHTTPDeckSelection() {
	host := s.dial("")
	s.join(host, "alice")
	guest := s.dial("")
	s.join(guest, "bob")

	_, err := s.registry.SetDeckSelection(s.sessionID, "alice", deck.DefaultDeckID)
	s.Require().NoError(err)
	s.handler.StartIfReady(context.Background(), s.sessionID)
	_, err = s.engine.GetBattleState(s.sessionID)
	s.True(apperrors.Is(err, apperrors.ErrBattleNotFound))

	_, err = s.registry.SetDeckSelection(s.sessionID, "bob", deck.DefaultDeckID)
	s.Require().NoError(err)
	s.handler.StartIfReady(context.Background(), s.sessionID)
	s.expect(guest, TypeBattleState)
	_, err = s.engine.GetBattleState(s.sessionID)
	s.NoError(err)
}

func (s *BattleHandlerTestSuite) TestRuleErrorsKeepConnectionOpen() {
	host, guest := s.startBattle()

	s.send(guest, map[string]interface{}{"action": ActionEndTurn})
	errMsg := s.expect(guest, TypeError)
	s.Equal(false, errMsg["success"])
	s.Equal("Not your turn", errMsg["error"])
	s.Equal(float64(apperrors.ErrNotYourTurn), errMsg["code"])
	s.Equal(string(apperrors.KindRuleViolation), errMsg["kind"])

	s.send(guest, map[string]interface{}{"action": "dance"})
	s.Equal(float64(apperrors.ErrUnknownAction), s.expect(guest, TypeError)["code"])

	s.send(guest, map[string]interface{}{"action": ActionPing})
	s.expect(guest, TypePong)

	s.send(host, map[string]interface{}{"action": ActionPlayCard, "hand_index": 99})
	s.Equal(float64(apperrors.ErrInvalidHandIndex), s.expect(host, TypeError)["code"])
}

func (s *BattleHandlerTestSuite) TestEndTurnBroadcastsToBoth() {
	host, guest := s.startBattle()

	s.send(host, map[string]interface{}{"action": ActionEndTurn})
	for _, conn := range []*websocket.Conn{host, guest} {
		m := s.expectBattle(conn, func(m map[string]interface{}) bool { return m["turn_number"] == float64(2) })
		s.Equal("bob", m["current_turn"])
		s.Equal(float64(2), player(m, "bob")["max_mana"])
	}

	s.send(guest, map[string]interface{}{"action": ActionGetBattleState})
	m := s.expect(guest, TypeBattleState)
	s.Equal(float64(5), player(m, "bob")["hand_count"])
}

func (s *BattleHandlerTestSuite) TestPlayCardAndAttack() {
	host, guest := s.startBattle()

	// 起手从牌库尾部抽牌：card_010, card_009, card_008, card_007。Goblin(card_008)花费1
	st, err := s.engine.GetBattleState(s.sessionID)
	s.Require().NoError(err)
	goblin := -1
	for i, c := range st.Players["alice"].Hand {
		if c.ID == "card_008" {
			goblin = i
		}
	}
	s.Require().GreaterOrEqual(goblin, 0)

	s.send(host, map[string]interface{}{"action": ActionPlayCard, "hand_index": goblin})
	m := s.expectBattle(guest, func(m map[string]interface{}) bool {
		return len(player(m, "alice")["field"].([]interface{})) == 1
	})
	s.Equal(float64(0), player(m, "alice")["mana"])

	// 缺省目标即攻击玩家
	s.send(host, map[string]interface{}{"action": ActionAttack, "attacker_hand_index": 0})
	m = s.expectBattle(guest, func(m map[string]interface{}) bool { return player(m, "bob")["health"] == float64(28) })
	field := player(m, "alice")["field"].([]interface{})
	s.Equal(true, field[0].(map[string]interface{})["used_this_turn"])

	s.send(host, map[string]interface{}{"action": ActionAttack, "attacker_hand_index": 0})
	s.Equal(float64(apperrors.ErrCardAlreadyUsed), s.expect(host, TypeError)["code"])
}

func (s *BattleHandlerTestSuite) TestSurrenderFinishesBattle() {
	host, guest := s.startBattle()

	s.send(guest, map[string]interface{}{"action": ActionSurrender})
	m := s.expectBattle(host, func(m map[string]interface{}) bool { return m["is_finished"] == true })
	s.Equal("alice", m["winner"])

	update := s.expectSessionStatus(host, session.StatusFinished)
	s.Equal("bob", update["guest_id"])

	s.send(host, map[string]interface{}{"action": ActionEndTurn})
	s.Equal(float64(apperrors.ErrBattleFinished), s.expect(host, TypeError)["code"])
}

func (s *BattleHandlerTestSuite) expectSessionStatus(conn *websocket.Conn, status session.Status) map[string]interface{} {
	for {
		m := s.expect(conn, TypeSessionUpdate)
		if m["status"] == string(status) {
			return m
		}
	}
}

func (s *BattleHandlerTestSuite) TestDisconnectAnnotatesBattle() {
	host, guest := s.startBattle()

	s.Require().NoError(guest.Close())
	m := s.expectBattle(host, func(m map[string]interface{}) bool {
		return m["last_action"] == "Player bob left the battle"
	})
	s.Equal(false, m["is_finished"])

	// 重连后收到当前状态
	again := s.dial("")
	s.join(again, "bob")
	m = s.expect(again, TypeBattleState)
	s.Len(player(m, "bob")["hand"], 4)
}

func (s *BattleHandlerTestSuite) TestLeaveSessionForfeits() {
	host, guest := s.startBattle()

	s.send(guest, map[string]interface{}{"action": ActionLeaveSession})
	left := s.expect(guest, TypeSessionLeft)
	s.Equal(s.sessionID, left["session_id"])

	m := s.expectBattle(host, func(m map[string]interface{}) bool { return m["is_finished"] == true })
	s.Equal("alice", m["winner"])
	update := s.expectSessionStatus(host, session.StatusWaiting)
	s.Equal("", update["guest_id"])

	_, err := s.engine.GetBattleState(s.sessionID)
	s.True(apperrors.Is(err, apperrors.ErrBattleNotFound))

	s.send(guest, map[string]interface{}{"action": ActionEndTurn})
	s.Equal(float64(apperrors.ErrNotJoined), s.expect(guest, TypeError)["code"])
}

func (s *BattleHandlerTestSuite) TestSelectDeckChecksOwnership() {
	host := s.dial("")
	s.join(host, "alice")
	s.selectDeck(host, "alice-burn")
	m := s.expect(host, TypeSessionUpdate)
	for m["host_deck_id"] != "alice-burn" {
		m = s.expect(host, TypeSessionUpdate)
	}

	s.selectDeck(host, "bob-control")
	s.Equal(float64(apperrors.ErrDeckNotFound), s.expect(host, TypeError)["code"])
	s.selectDeck(host, "no-such-deck")
	s.Equal(string(apperrors.KindNotFound), s.expect(host, TypeError)["kind"])

	sess, err := s.registry.GetSession(s.sessionID)
	s.Require().NoError(err)
	s.Equal("alice-burn", sess.HostDeckID)

	s.send(host, map[string]interface{}{"action": ActionSelectDeck})
	s.Equal(float64(apperrors.ErrInvalidParam), s.expect(host, TypeError)["code"])
}

func (s *BattleHandlerTestSuite) TestOutsiderCannotEndBattle() {
	s.startBattle()

	err := s.handler.LeaveSession(context.Background(), s.sessionID, "mallory")
	s.True(apperrors.Is(err, apperrors.ErrPlayerNotInSession))

	st, err := s.engine.GetBattleState(s.sessionID)
	s.Require().NoError(err)
	s.False(st.IsFinished)
	sess, err := s.registry.GetSession(s.sessionID)
	s.Require().NoError(err)
	s.Equal(session.StatusActive, sess.Status)
	s.Equal("bob", sess.GuestID)

	err = s.handler.LeaveSession(context.Background(), "000000", "alice")
	s.True(apperrors.Is(err, apperrors.ErrSessionNotFound))
}

func (s *BattleHandlerTestSuite) TestJoinErrors() {
	conn := s.dial("")
	s.send(conn, map[string]interface{}{"action": ActionPlayCard, "hand_index": 0})
	s.Equal(float64(apperrors.ErrNotJoined), s.expect(conn, TypeError)["code"])

	s.send(conn, map[string]interface{}{"action": ActionJoinSession, "session_id": "000000", "user_id": "bob"})
	s.Equal(string(apperrors.KindNotFound), s.expect(conn, TypeError)["kind"])

	s.send(conn, map[string]interface{}{"action": ActionJoinSession, "session_id": s.sessionID})
	s.Equal(float64(apperrors.ErrInvalidParam), s.expect(conn, TypeError)["code"])

	_, err := s.registry.JoinSession(s.sessionID, "bob")
	s.Require().NoError(err)
	s.send(conn, map[string]interface{}{"action": ActionJoinSession, "session_id": s.sessionID, "user_id": "carol"})
	s.Equal(string(apperrors.KindConflict), s.expect(conn, TypeError)["kind"])
}

func (s *BattleHandlerTestSuite) TestTokenIdentityMustMatch() {
	conn := s.dial("?user=bob")
	s.send(conn, map[string]interface{}{"action": ActionJoinSession, "session_id": s.sessionID, "user_id": "mallory"})
	s.Equal(float64(apperrors.ErrAuthorization), s.expect(conn, TypeError)["code"])

	// 省略user_id时使用握手身份
	s.send(conn, map[string]interface{}{"action": ActionJoinSession, "session_id": s.sessionID})
	m := s.expect(conn, TypeConnectionEstablished)
	s.Equal("bob", m["user_id"])
}

func (s *BattleHandlerTestSuite) TestJoinWithoutSessionUsesLatest() {
	conn := s.dial("?user=alice")
	s.send(conn, map[string]interface{}{"action": ActionJoinSession})
	m := s.expect(conn, TypeConnectionEstablished)
	s.Equal(s.sessionID, m["session_id"])

	stranger := s.dial("?user=zed")
	s.send(stranger, map[string]interface{}{"action": ActionJoinSession})
	s.Equal(float64(apperrors.ErrInvalidParam), s.expect(stranger, TypeError)["code"])
}

func (s *BattleHandlerTestSuite) TestMalformedJSONClosesConnection() {
	conn := s.dial("")
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	errMsg := s.expect(conn, TypeError)
	s.Equal(string(apperrors.KindProtocol), errMsg["kind"])

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	_, _, err := conn.ReadMessage()
	s.Error(err)
	s.Eventually(func() bool { return s.hub.ClientCount() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func (s *BattleHandlerTestSuite) TestMissingActionClosesConnection() {
	conn := s.dial("")
	s.send(conn, map[string]interface{}{"session_id": s.sessionID})
	s.expect(conn, TypeError)

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	_, _, err := conn.ReadMessage()
	s.Error(err)
}

func TestBattleHandlerSuite(t *testing.T) {
	suite.Run(t, new(BattleHandlerTestSuite))
}

func TestHeartbeatOverSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(&HubConfig{
		Battles:           stubBattles{},
		Sessions:          stubSessions{},
		HeartbeatInterval: 20 * time.Millisecond,
	})
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.ServeConn(conn, ClientOptions{})
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// 客户端从不回复，连接依然保持
	for i := 0; i < 3; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m map[string]interface{}
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatal(err)
		}
		if m["type"] != TypeHeartbeat {
			t.Fatalf("unexpected message %v", m)
		}
	}
}
