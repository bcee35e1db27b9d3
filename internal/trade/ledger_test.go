package trade

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yomicrex/coinhub-api/internal/models"
)

// fakeCatalog реализует CoinCatalog поверх карты монет в памяти
type fakeCatalog struct {
	coins map[uuid.UUID]CoinInfo
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{coins: make(map[uuid.UUID]CoinInfo)}
}

func (c *fakeCatalog) addCoin(ownerID uuid.UUID, tradeable bool) uuid.UUID {
	id := uuid.New()
	c.coins[id] = CoinInfo{OwnerID: ownerID, Tradeable: tradeable}
	return id
}

func (c *fakeCatalog) Get(ctx context.Context, coinID uuid.UUID) (*CoinInfo, error) {
	info, ok := c.coins[coinID]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (c *fakeCatalog) IsOwnedBy(ctx context.Context, coinID, userID uuid.UUID) (bool, error) {
	info, ok := c.coins[coinID]
	return ok && info.OwnerID == userID, nil
}

// testEnv собирает ядро обменов поверх MemStore и фиктивного каталога
type testEnv struct {
	store      *MemStore
	catalog    *fakeCatalog
	ledger     *Ledger
	arbitrator *Arbitrator
	tracker    *Tracker
	registrar  *Registrar

	initiator uuid.UUID
	owner     uuid.UUID
	stranger  uuid.UUID
	coinID    uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     NewMemStore(),
		catalog:   newFakeCatalog(),
		initiator: uuid.New(),
		owner:     uuid.New(),
		stranger:  uuid.New(),
	}
	env.coinID = env.catalog.addCoin(env.owner, true)
	env.ledger = NewLedger(env.store, env.catalog)
	env.arbitrator = NewArbitrator(env.store, env.catalog)
	env.tracker = NewTracker(env.store)
	env.registrar = NewRegistrar(env.ledger, env.store)
	return env
}

func (env *testEnv) initiate(t *testing.T) *models.Trade {
	t.Helper()

	trade, err := env.ledger.Initiate(context.Background(), env.initiator, env.coinID)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	return trade
}

// accept доводит обмен до статуса accepted через предложение инициатора
func (env *testEnv) accept(t *testing.T) *models.Trade {
	t.Helper()

	trade := env.initiate(t)
	offer, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, nil, "меняю на что угодно")
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	accepted, err := env.arbitrator.Accept(context.Background(), trade.ID, offer.ID, env.owner)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	return accepted
}

func TestLedgerInitiate(t *testing.T) {
	env := newTestEnv(t)

	trade := env.initiate(t)

	if trade.Status != models.TradeStatusPending {
		t.Errorf("status = %s, want pending", trade.Status)
	}
	if trade.OwnerID != env.owner {
		t.Errorf("owner = %s, want %s", trade.OwnerID, env.owner)
	}

	// Запись об отправке создается вместе с обменом
	shipping, err := env.store.GetShipping(context.Background(), trade.ID)
	if err != nil {
		t.Fatalf("GetShipping() error = %v", err)
	}
	if shipping == nil {
		t.Fatal("shipping record not created with trade")
	}
	if shipping.InitiatorShipped || shipping.OwnerShipped {
		t.Error("new shipping record must be empty")
	}
}

func TestLedgerInitiateValidation(t *testing.T) {
	env := newTestEnv(t)

	notTradeable := env.catalog.addCoin(env.owner, false)
	ownCoin := env.catalog.addCoin(env.initiator, true)

	tests := []struct {
		name      string
		initiator uuid.UUID
		coinID    uuid.UUID
		wantErr   error
	}{
		{"unknown coin", env.initiator, uuid.New(), ErrItemNotFound},
		{"coin not tradeable", env.initiator, notTradeable, ErrItemNotTradeable},
		{"own coin", env.initiator, ownCoin, ErrSelfTrade},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.ledger.Initiate(context.Background(), tt.initiator, tt.coinID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Initiate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLedgerInitiateDuplicate(t *testing.T) {
	env := newTestEnv(t)

	first := env.initiate(t)

	_, err := env.ledger.Initiate(context.Background(), env.initiator, env.coinID)
	var tradeErr *Error
	if !errors.As(err, &tradeErr) || tradeErr.Code != CodeDuplicateActiveTrade {
		t.Fatalf("Initiate() error = %v, want duplicate_active_trade", err)
	}
	// В ошибке возвращается ID существующего обмена
	if tradeErr.TradeID != first.ID {
		t.Errorf("TradeID = %s, want %s", tradeErr.TradeID, first.ID)
	}

	// Другой пользователь создает обмен по той же монете свободно
	if _, err := env.ledger.Initiate(context.Background(), env.stranger, env.coinID); err != nil {
		t.Errorf("Initiate() by another user error = %v", err)
	}
}

// Гонка конкурентных созданий по одной паре (инициатор, монета):
// хранилище обязано пропустить ровно одно, остальные получают
// duplicate_active_trade с ID победителя.
func TestLedgerInitiateConcurrent(t *testing.T) {
	for i := 0; i < 50; i++ {
		env := newTestEnv(t)

		var wg sync.WaitGroup
		results := make([]error, 4)
		for j := range results {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, results[j] = env.ledger.Initiate(context.Background(), env.initiator, env.coinID)
			}(j)
		}
		wg.Wait()

		var created, duplicates int
		for _, err := range results {
			switch {
			case err == nil:
				created++
			case errors.Is(err, DuplicateActiveTrade(uuid.Nil)):
				duplicates++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if created != 1 || duplicates != 3 {
			t.Fatalf("created = %d, duplicates = %d, want 1 and 3", created, duplicates)
		}

		trades, err := env.store.ListTrades(context.Background(), TradeFilter{UserID: env.initiator, Direction: "outgoing"})
		if err != nil {
			t.Fatalf("ListTrades() error = %v", err)
		}
		if len(trades) != 1 {
			t.Fatalf("persisted trades = %d, want 1", len(trades))
		}
	}
}

func TestLedgerInitiateAfterTerminal(t *testing.T) {
	env := newTestEnv(t)

	trade := env.initiate(t)
	if _, err := env.ledger.Cancel(context.Background(), trade.ID, env.initiator); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// Отмененный обмен пару не занимает
	if _, err := env.ledger.Initiate(context.Background(), env.initiator, env.coinID); err != nil {
		t.Errorf("Initiate() after cancel error = %v", err)
	}
}

func TestLedgerCancel(t *testing.T) {
	// Каждый под-тест работает в своем окружении: неотмененный обмен
	// занимает пару (инициатор, монета) и мешал бы следующему Initiate
	t.Run("initiator cancels pending", func(t *testing.T) {
		env := newTestEnv(t)
		trade := env.initiate(t)
		cancelled, err := env.ledger.Cancel(context.Background(), trade.ID, env.initiator)
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if cancelled.Status != models.TradeStatusCancelled {
			t.Errorf("status = %s, want cancelled", cancelled.Status)
		}
	})

	t.Run("owner cannot cancel pending", func(t *testing.T) {
		env := newTestEnv(t)
		trade := env.initiate(t)
		_, err := env.ledger.Cancel(context.Background(), trade.ID, env.owner)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Cancel() error = %v, want invalid_transition", err)
		}
	})

	t.Run("stranger is not a participant", func(t *testing.T) {
		env := newTestEnv(t)
		trade := env.initiate(t)
		_, err := env.ledger.Cancel(context.Background(), trade.ID, env.stranger)
		if !errors.Is(err, ErrNotAParticipant) {
			t.Errorf("Cancel() error = %v, want not_a_participant", err)
		}
	})

	t.Run("owner cancels accepted", func(t *testing.T) {
		env := newTestEnv(t)
		trade := env.accept(t)
		cancelled, err := env.ledger.Cancel(context.Background(), trade.ID, env.owner)
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		if cancelled.Status != models.TradeStatusCancelled {
			t.Errorf("status = %s, want cancelled", cancelled.Status)
		}
	})

	t.Run("cancel is not repeatable", func(t *testing.T) {
		env := newTestEnv(t)
		trade := env.initiate(t)
		if _, err := env.ledger.Cancel(context.Background(), trade.ID, env.initiator); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		_, err := env.ledger.Cancel(context.Background(), trade.ID, env.initiator)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("second Cancel() error = %v, want invalid_transition", err)
		}
	})

	t.Run("unknown trade", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.ledger.Cancel(context.Background(), uuid.New(), env.initiator)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Cancel() error = %v, want not_found", err)
		}
	})
}

func TestLedgerView(t *testing.T) {
	env := newTestEnv(t)
	trade := env.initiate(t)

	details, err := env.ledger.View(context.Background(), trade.ID, env.owner)
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if details.Trade.ID != trade.ID {
		t.Errorf("trade ID = %s, want %s", details.Trade.ID, trade.ID)
	}
	if details.Shipping == nil {
		t.Error("View() must include shipping record")
	}

	// Посторонний обмен не видит
	if _, err := env.ledger.View(context.Background(), trade.ID, env.stranger); !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("View() by stranger error = %v, want not_a_participant", err)
	}

	if _, err := env.ledger.View(context.Background(), uuid.New(), env.owner); !errors.Is(err, ErrNotFound) {
		t.Errorf("View() unknown trade error = %v, want not_found", err)
	}
}

func TestLedgerList(t *testing.T) {
	env := newTestEnv(t)
	env.initiate(t)

	secondCoin := env.catalog.addCoin(env.initiator, true)
	if _, err := env.ledger.Initiate(context.Background(), env.owner, secondCoin); err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	outgoing, err := env.ledger.List(context.Background(), env.initiator, "outgoing", "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(outgoing) != 1 {
		t.Errorf("outgoing count = %d, want 1", len(outgoing))
	}

	incoming, err := env.ledger.List(context.Background(), env.initiator, "incoming", "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(incoming) != 1 {
		t.Errorf("incoming count = %d, want 1", len(incoming))
	}

	all, err := env.ledger.List(context.Background(), env.initiator, "all", "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all count = %d, want 2", len(all))
	}

	pending, err := env.ledger.List(context.Background(), env.initiator, "all", models.TradeStatusPending)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending count = %d, want 2", len(pending))
	}

	completed, err := env.ledger.List(context.Background(), env.initiator, "all", models.TradeStatusCompleted)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(completed) != 0 {
		t.Errorf("completed count = %d, want 0", len(completed))
	}
}
