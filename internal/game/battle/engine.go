package battle

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	apperrors "github.com/wfunc/card-battle/internal/errors"
	"github.com/wfunc/card-battle/internal/game/card"
	"github.com/wfunc/card-battle/internal/game/deck"
	"github.com/wfunc/card-battle/internal/game/session"
	"github.com/wfunc/card-battle/internal/models"
	"go.uber.org/zap"
)

// SessionProvider 引擎依赖的会话操作
type SessionProvider interface {
	GetSession(id string) (*session.GameSession, error)
	MarkActive(id string) error
	MarkFinished(id string) error
}

// Result 对局结果
type Result struct {
	SessionID  string
	WinnerID   string
	LoserID    string
	Reason     string
	TurnNumber int
	StartedAt  time.Time
	FinishedAt time.Time
}

// ResultRecorder 对局结束回调（战绩落库）
type ResultRecorder interface {
	RecordResult(ctx context.Context, result Result) error
}

// ShuffleFunc 洗牌函数
type ShuffleFunc func(cards []card.Card)

// RandomShuffle 每次调用独立洗牌
func RandomShuffle(cards []card.Card) {
	rand.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// EngineConfig 对战引擎配置
type EngineConfig struct {
	Sessions          SessionProvider
	Decks             deck.Source
	Catalog           *card.Catalog
	Store             Store
	Results           ResultRecorder
	Rules             Rules
	Logger            *zap.Logger
	Shuffle           ShuffleFunc
	PersistTimeout    time.Duration
	FinishedRetention time.Duration
	QueueSize         int
}

// battleEntry 单局对战及其锁
type battleEntry struct {
	mu           sync.Mutex
	state        *BattleState
	finishReason string
	finishedAt   time.Time
}

// Engine 对战引擎，持有所有进行中对局的权威状态
type Engine struct {
	mu      sync.RWMutex
	battles map[string]*battleEntry

	sessions  SessionProvider
	decks     deck.Source
	catalog   *card.Catalog
	store     Store
	results   ResultRecorder
	rules     Rules
	logger    *zap.Logger
	shuffle   ShuffleFunc
	retention time.Duration
	now       func() time.Time

	persister *persister
}

// NewEngine 创建对战引擎
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = card.Default()
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	shuffle := cfg.Shuffle
	if shuffle == nil {
		shuffle = RandomShuffle
	}
	rules := cfg.Rules
	if rules == (Rules{}) {
		rules = DefaultRules()
	}
	retention := cfg.FinishedRetention
	if retention <= 0 {
		retention = 10 * time.Minute
	}

	return &Engine{
		battles:   make(map[string]*battleEntry),
		sessions:  cfg.Sessions,
		decks:     cfg.Decks,
		catalog:   catalog,
		store:     store,
		results:   cfg.Results,
		rules:     rules,
		logger:    logger,
		shuffle:   shuffle,
		retention: retention,
		now:       time.Now,
		persister: newPersister(logger, cfg.PersistTimeout, cfg.QueueSize),
	}
}

// Rules 当前规则
func (e *Engine) Rules() Rules {
	return e.rules
}

// StartBattle 开始对战。卡组ID为空时使用会话中已选的卡组，仍为空则使用默认卡组
func (e *Engine) StartBattle(ctx context.Context, sessionID, hostDeckID, guestDeckID string) (*BattleState, error) {
	sess, err := e.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsFull() {
		return nil, apperrors.New(apperrors.ErrConflict, "Session needs both a host and a guest")
	}
	if sess.Status == session.StatusActive || sess.Status == session.StatusFinished {
		return nil, apperrors.New(apperrors.ErrBattleAlreadyStarted)
	}
	if e.exists(sessionID) {
		return nil, apperrors.New(apperrors.ErrBattleAlreadyStarted)
	}

	if hostDeckID == "" {
		hostDeckID = sess.HostDeckID
	}
	if guestDeckID == "" {
		guestDeckID = sess.GuestDeckID
	}
	hostCards := e.resolveDeck(ctx, sessionID, sess.HostID, hostDeckID)
	guestCards := e.resolveDeck(ctx, sessionID, sess.GuestID, guestDeckID)

	now := e.now()
	state := &BattleState{
		SessionID:   sessionID,
		HostID:      sess.HostID,
		GuestID:     sess.GuestID,
		CurrentTurn: sess.HostID,
		TurnNumber:  1,
		Players: map[string]*PlayerState{
			sess.HostID:  e.newPlayer(sess.HostID, hostCards),
			sess.GuestID: e.newPlayer(sess.GuestID, guestCards),
		},
		LastAction: "Battle started",
		StartedAt:  now,
		UpdatedAt:  now,
	}
	state.Players[sess.HostID].IsActive = true

	entry := &battleEntry{state: state}
	e.mu.Lock()
	if _, exists := e.battles[sessionID]; exists {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrBattleAlreadyStarted)
	}
	e.battles[sessionID] = entry
	entry.mu.Lock()
	e.mu.Unlock()
	snapshot := state.Clone()
	e.persistLocked(snapshot)
	entry.mu.Unlock()

	if err := e.sessions.MarkActive(sessionID); err != nil {
		e.logger.Warn("更新会话状态失败", zap.String("session_id", sessionID), zap.Error(err))
	}

	e.logger.Info("对战开始",
		zap.String("session_id", sessionID),
		zap.String("host_id", sess.HostID),
		zap.String("guest_id", sess.GuestID),
		zap.Int("host_deck", len(hostCards)),
		zap.Int("guest_deck", len(guestCards)))
	return snapshot, nil
}

// resolveDeck 解析卡组，失败时回退到默认卡组
func (e *Engine) resolveDeck(ctx context.Context, sessionID, playerID, deckID string) []card.Card {
	if deckID != "" && deckID != deck.DefaultDeckID && e.decks != nil {
		ids, err := e.decks.GetDeck(ctx, deckID)
		if err == nil && len(ids) > 0 {
			return e.catalog.Build(ids)
		}
		e.logger.Warn("读取卡组失败，使用默认卡组",
			zap.String("session_id", sessionID),
			zap.String("player_id", playerID),
			zap.String("deck_id", deckID),
			zap.Error(err))
	}
	return e.catalog.Build(deck.DefaultDeckIDs(e.catalog))
}

func (e *Engine) newPlayer(playerID string, cards []card.Card) *PlayerState {
	e.shuffle(cards)
	p := &PlayerState{
		PlayerID:  playerID,
		Health:    e.rules.StartingHealth,
		MaxHealth: e.rules.StartingHealth,
		Mana:      e.rules.StartingMana,
		MaxMana:   e.rules.StartingMana,
		Hand:      make([]card.Card, 0, e.rules.InitialHandSize),
		Deck:      cards,
		Field:     []card.Card{},
		Graveyard: []card.Card{},
	}
	for i := 0; i < e.rules.InitialHandSize; i++ {
		if !p.draw() {
			break
		}
	}
	return p
}

// PlayCard 打出手牌
func (e *Engine) PlayCard(ctx context.Context, sessionID, playerID string, handIndex int) (*BattleState, error) {
	return e.mutate(sessionID, func(st *BattleState, entry *battleEntry) error {
		if st.CurrentTurn != playerID {
			return apperrors.New(apperrors.ErrNotYourTurn)
		}
		p := st.Player(playerID)
		if handIndex < 0 || handIndex >= len(p.Hand) {
			return apperrors.New(apperrors.ErrInvalidHandIndex)
		}
		c := p.Hand[handIndex]
		if c.ManaCost > p.Mana {
			return apperrors.New(apperrors.ErrNotEnoughMana)
		}

		p.Hand = append(p.Hand[:handIndex], p.Hand[handIndex+1:]...)
		p.Mana -= c.ManaCost
		st.LastAction = fmt.Sprintf("%s played %s", playerID, c.Name)

		if c.IsCreature() {
			c.UsedThisTurn = false
			p.Field = append(p.Field, c)
			return nil
		}

		opp := st.Player(st.OpponentID(playerID))
		applyEffect(c, p, opp)
		p.Graveyard = append(p.Graveyard, c)
		if opp.Health <= 0 {
			e.endGame(st, entry, playerID, models.FinishReasonDefeat)
		}
		return nil
	})
}

// Attack 生物攻击。目标下标越界时直接攻击对手
func (e *Engine) Attack(ctx context.Context, sessionID, attackerID string, attackerIndex, targetIndex int) (*BattleState, error) {
	return e.mutate(sessionID, func(st *BattleState, entry *battleEntry) error {
		if st.CurrentTurn != attackerID {
			return apperrors.New(apperrors.ErrNotYourTurn)
		}
		p := st.Player(attackerID)
		if attackerIndex < 0 || attackerIndex >= len(p.Field) {
			return apperrors.New(apperrors.ErrInvalidAttackerIndex)
		}
		attacker := &p.Field[attackerIndex]
		if attacker.UsedThisTurn {
			return apperrors.New(apperrors.ErrCardAlreadyUsed)
		}
		attacker.UsedThisTurn = true

		opponentID := st.OpponentID(attackerID)
		opp := st.Player(opponentID)

		if targetIndex < 0 || targetIndex >= len(opp.Field) {
			opp.damage(attacker.Attack)
			st.LastAction = fmt.Sprintf("%s's %s attacked %s directly", attackerID, attacker.Name, opponentID)
			if opp.Health <= 0 {
				e.endGame(st, entry, attackerID, models.FinishReasonDefeat)
			}
			return nil
		}

		target := &opp.Field[targetIndex]
		target.Defense -= attacker.Attack
		attacker.Defense -= target.Attack
		st.LastAction = fmt.Sprintf("%s's %s attacked %s's %s", attackerID, attacker.Name, opponentID, target.Name)

		if target.IsDead() {
			opp.Graveyard = append(opp.Graveyard, *target)
			opp.Field = append(opp.Field[:targetIndex], opp.Field[targetIndex+1:]...)
		}
		if attacker.IsDead() {
			p.Graveyard = append(p.Graveyard, *attacker)
			p.Field = append(p.Field[:attackerIndex], p.Field[attackerIndex+1:]...)
		}
		return nil
	})
}

// EndTurn 结束回合
func (e *Engine) EndTurn(ctx context.Context, sessionID, playerID string) (*BattleState, error) {
	return e.mutate(sessionID, func(st *BattleState, entry *battleEntry) error {
		if st.CurrentTurn != playerID {
			return apperrors.New(apperrors.ErrNotYourTurn)
		}

		next := st.OpponentID(playerID)
		st.CurrentTurn = next
		st.TurnNumber++

		for id, p := range st.Players {
			for i := range p.Field {
				p.Field[i].UsedThisTurn = false
			}
			p.IsActive = id == next
		}

		np := st.Player(next)
		np.MaxMana = min(e.rules.MaxMana, st.TurnNumber)
		np.Mana = np.MaxMana
		np.draw()

		st.LastAction = fmt.Sprintf("Turn ended, %s's turn", next)

		host, guest := st.Player(st.HostID), st.Player(st.GuestID)
		if host.exhausted() && guest.exhausted() {
			// 血量相同时房主获胜
			winner := host
			if guest.Health > host.Health {
				winner = guest
			}
			e.endGame(st, entry, winner.PlayerID, models.FinishReasonExhaustion)
			st.LastAction = fmt.Sprintf("Game ended by deck exhaustion! %s wins with %d health!", winner.PlayerID, winner.Health)
		}
		return nil
	})
}

// Surrender 投降，不受回合限制
func (e *Engine) Surrender(ctx context.Context, sessionID, playerID string) (*BattleState, error) {
	return e.mutate(sessionID, func(st *BattleState, entry *battleEntry) error {
		if !st.HasPlayer(playerID) {
			return apperrors.New(apperrors.ErrPlayerNotInSession)
		}
		winner := st.OpponentID(playerID)
		e.endGame(st, entry, winner, models.FinishReasonSurrender)
		st.LastAction = fmt.Sprintf("Player %s surrendered. %s wins!", playerID, winner)
		return nil
	})
}

// AnnotatePlayerLeft 记录玩家断线，对局继续保留
func (e *Engine) AnnotatePlayerLeft(ctx context.Context, sessionID, playerID string) (*BattleState, error) {
	return e.mutate(sessionID, func(st *BattleState, _ *battleEntry) error {
		if !st.HasPlayer(playerID) {
			return apperrors.New(apperrors.ErrPlayerNotInSession)
		}
		st.LastAction = fmt.Sprintf("Player %s left the battle", playerID)
		return nil
	})
}

// endGame 结束对局，调用方持有对局锁
func (e *Engine) endGame(st *BattleState, entry *battleEntry, winner, reason string) {
	st.Winner = winner
	st.IsFinished = true
	st.LastAction = fmt.Sprintf("Game over! %s wins!", winner)
	for _, p := range st.Players {
		p.IsActive = false
	}
	entry.finishReason = reason
	entry.finishedAt = e.now()
}

// mutate 在对局锁内执行修改，持久化与结束回调在锁外异步进行
func (e *Engine) mutate(sessionID string, fn func(st *BattleState, entry *battleEntry) error) (*BattleState, error) {
	entry, err := e.entry(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	st := entry.state
	if st.IsFinished {
		entry.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrBattleFinished)
	}
	if err := fn(st, entry); err != nil {
		entry.mu.Unlock()
		return nil, err
	}
	st.UpdatedAt = e.now()
	snapshot := st.Clone()
	e.persistLocked(snapshot)
	finished := snapshot.IsFinished
	reason := entry.finishReason
	entry.mu.Unlock()

	if finished {
		e.onFinished(snapshot, reason)
	}
	return snapshot, nil
}

// persistLocked 在对局锁内入队，保证同一对局的写入顺序
func (e *Engine) persistLocked(snapshot *BattleState) {
	e.persister.enqueue(snapshot.SessionID, "save", func(ctx context.Context) error {
		return e.store.Save(ctx, snapshot)
	})
}

func (e *Engine) onFinished(st *BattleState, reason string) {
	if err := e.sessions.MarkFinished(st.SessionID); err != nil {
		e.logger.Warn("更新会话状态失败", zap.String("session_id", st.SessionID), zap.Error(err))
	}

	result := Result{
		SessionID:  st.SessionID,
		WinnerID:   st.Winner,
		LoserID:    st.OpponentID(st.Winner),
		Reason:     reason,
		TurnNumber: st.TurnNumber,
		StartedAt:  st.StartedAt,
		FinishedAt: st.UpdatedAt,
	}
	e.logger.Info("对战结束",
		zap.String("session_id", st.SessionID),
		zap.String("winner", result.WinnerID),
		zap.String("reason", reason),
		zap.Int("turn_number", st.TurnNumber))

	if e.results != nil {
		e.persister.enqueueWait(st.SessionID, "result", func(ctx context.Context) error {
			return e.results.RecordResult(ctx, result)
		})
	}
}

// GetBattleState 返回对局状态的深拷贝
func (e *Engine) GetBattleState(sessionID string) (*BattleState, error) {
	entry, err := e.entry(sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Clone(), nil
}

// EndBattle 移除对局，可重复调用
func (e *Engine) EndBattle(sessionID string) {
	e.mu.Lock()
	entry, ok := e.battles[sessionID]
	delete(e.battles, sessionID)
	e.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	e.persister.enqueueWait(sessionID, "delete", func(ctx context.Context) error {
		return e.store.Delete(ctx, sessionID)
	})
	entry.mu.Unlock()

	e.logger.Info("移除对战", zap.String("session_id", sessionID))
}

// Recover 内存中没有对局时从存储恢复
func (e *Engine) Recover(ctx context.Context, sessionID string) (*BattleState, error) {
	if st, err := e.GetBattleState(sessionID); err == nil {
		return st, nil
	}

	state, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Players == nil || !state.HasPlayer(state.HostID) || !state.HasPlayer(state.GuestID) {
		return nil, apperrors.Newf(apperrors.ErrUnknown, "corrupt battle snapshot: %s", sessionID)
	}

	entry := &battleEntry{state: state}
	if state.IsFinished {
		entry.finishedAt = e.now()
	}

	e.mu.Lock()
	if existing, ok := e.battles[sessionID]; ok {
		e.mu.Unlock()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return existing.state.Clone(), nil
	}
	e.battles[sessionID] = entry
	e.mu.Unlock()

	e.logger.Info("恢复对战",
		zap.String("session_id", sessionID),
		zap.Int("turn_number", state.TurnNumber),
		zap.Bool("finished", state.IsFinished))
	return state.Clone(), nil
}

// CleanupFinished 移除结束超过保留期的对局，返回移除数量
func (e *Engine) CleanupFinished() int {
	now := e.now()
	var expired []string

	e.mu.RLock()
	for id, entry := range e.battles {
		entry.mu.Lock()
		if entry.state.IsFinished && now.Sub(entry.finishedAt) >= e.retention {
			expired = append(expired, id)
		}
		entry.mu.Unlock()
	}
	e.mu.RUnlock()

	for _, id := range expired {
		e.EndBattle(id)
	}
	if len(expired) > 0 {
		e.logger.Info("清理已结束对战", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// StartCleanupTask 启动已结束对局的清理任务
func (e *Engine) StartCleanupTask(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				e.logger.Info("停止对战清理任务")
				return
			case <-ticker.C:
				e.CleanupFinished()
			}
		}
	}()
}

// Count 内存中的对局数
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.battles)
}

// Flush 等待已入队的持久化任务完成
func (e *Engine) Flush() {
	e.persister.flush()
}

// Close 停止持久化协程，剩余任务执行完毕后返回
func (e *Engine) Close() {
	e.persister.close()
}

func (e *Engine) exists(sessionID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.battles[sessionID]
	return ok
}

func (e *Engine) entry(sessionID string) (*battleEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.battles[sessionID]
	if !ok {
		return nil, notFound(sessionID)
	}
	return entry, nil
}
