package trade

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yomicrex/coinhub-api/internal/models"
)

func TestArbitratorPropose(t *testing.T) {
	env := newTestEnv(t)
	trade := env.initiate(t)

	offerCoin := env.catalog.addCoin(env.initiator, true)

	first, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, &offerCoin, "предлагаю юбилейный рубль")
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if first.IsCounterOffer {
		t.Error("first offer must not be a counter offer")
	}
	if first.Status != models.OfferStatusPending {
		t.Errorf("offer status = %s, want pending", first.Status)
	}

	// Первое предложение переводит обмен в countered
	got, err := env.store.GetTrade(context.Background(), trade.ID)
	if err != nil {
		t.Fatalf("GetTrade() error = %v", err)
	}
	if got.Status != models.TradeStatusCountered {
		t.Errorf("trade status = %s, want countered", got.Status)
	}

	// Все последующие — контрпредложения, статус не меняется
	second, err := env.arbitrator.Propose(context.Background(), trade.ID, env.owner, nil, "давай без доплаты")
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if !second.IsCounterOffer {
		t.Error("second offer must be a counter offer")
	}

	got, _ = env.store.GetTrade(context.Background(), trade.ID)
	if got.Status != models.TradeStatusCountered {
		t.Errorf("trade status = %s, want countered", got.Status)
	}
}

func TestArbitratorProposeValidation(t *testing.T) {
	env := newTestEnv(t)
	trade := env.initiate(t)

	ownerCoin := env.catalog.addCoin(env.owner, true)

	t.Run("stranger is not a participant", func(t *testing.T) {
		_, err := env.arbitrator.Propose(context.Background(), trade.ID, env.stranger, nil, "")
		if !errors.Is(err, ErrNotAParticipant) {
			t.Errorf("Propose() error = %v, want not_a_participant", err)
		}
	})

	t.Run("offered coin must belong to offerer", func(t *testing.T) {
		_, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, &ownerCoin, "")
		if !errors.Is(err, ErrItemNotOwned) {
			t.Errorf("Propose() error = %v, want item_not_owned", err)
		}
	})

	t.Run("unknown offered coin", func(t *testing.T) {
		unknown := uuid.New()
		_, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, &unknown, "")
		if !errors.Is(err, ErrItemNotOwned) {
			t.Errorf("Propose() error = %v, want item_not_owned", err)
		}
	})

	t.Run("cancelled trade rejects offers", func(t *testing.T) {
		env := newTestEnv(t)
		trade := env.initiate(t)
		if _, err := env.ledger.Cancel(context.Background(), trade.ID, env.initiator); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		_, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, nil, "")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Propose() error = %v, want invalid_transition", err)
		}
	})

	t.Run("disputed trade rejects offers", func(t *testing.T) {
		env := newTestEnv(t)
		trade := env.initiate(t)
		if _, _, err := env.ledger.Report(context.Background(), trade.ID, env.initiator, "scam", ""); err != nil {
			t.Fatalf("Report() error = %v", err)
		}
		_, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, nil, "")
		if !errors.Is(err, ErrTradeDisputed) {
			t.Errorf("Propose() error = %v, want trade_disputed", err)
		}
	})
}

func TestArbitratorAccept(t *testing.T) {
	env := newTestEnv(t)
	trade := env.initiate(t)

	first, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, nil, "вариант один")
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	second, err := env.arbitrator.Propose(context.Background(), trade.ID, env.owner, nil, "вариант два")
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	accepted, err := env.arbitrator.Accept(context.Background(), trade.ID, second.ID, env.owner)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if accepted.Status != models.TradeStatusAccepted {
		t.Errorf("trade status = %s, want accepted", accepted.Status)
	}

	// Победитель принят, конкурирующее предложение отклонено той же операцией
	offers, err := env.store.GetOffers(context.Background(), trade.ID)
	if err != nil {
		t.Fatalf("GetOffers() error = %v", err)
	}
	for _, o := range offers {
		switch o.ID {
		case second.ID:
			if o.Status != models.OfferStatusAccepted {
				t.Errorf("winner status = %s, want accepted", o.Status)
			}
		case first.ID:
			if o.Status != models.OfferStatusRejected {
				t.Errorf("sibling status = %s, want rejected", o.Status)
			}
		}
	}

	// Повторное принятие уже решенного предложения
	_, err = env.arbitrator.Accept(context.Background(), trade.ID, first.ID, env.owner)
	if !errors.Is(err, ErrOfferAlreadyDecided) {
		t.Errorf("Accept() after decision error = %v, want offer_already_decided", err)
	}
}

func TestArbitratorAcceptAuthorization(t *testing.T) {
	env := newTestEnv(t)
	trade := env.initiate(t)

	offer, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, nil, "")
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	// Инициатор — участник, но принимать предложения может только владелец
	_, err = env.arbitrator.Accept(context.Background(), trade.ID, offer.ID, env.initiator)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Accept() by initiator error = %v, want forbidden", err)
	}

	_, err = env.arbitrator.Accept(context.Background(), trade.ID, offer.ID, env.stranger)
	if !errors.Is(err, ErrNotAParticipant) {
		t.Errorf("Accept() by stranger error = %v, want not_a_participant", err)
	}

	_, err = env.arbitrator.Accept(context.Background(), trade.ID, uuid.New(), env.owner)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Accept() unknown offer error = %v, want not_found", err)
	}
}

// Гонка двух конкурентных принятий: побеждает ровно одно, проигравший
// получает offer_already_decided, у обмена ровно одно принятое предложение.
func TestArbitratorAcceptConcurrent(t *testing.T) {
	for i := 0; i < 50; i++ {
		env := newTestEnv(t)
		trade := env.initiate(t)

		first, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, nil, "")
		if err != nil {
			t.Fatalf("Propose() error = %v", err)
		}
		second, err := env.arbitrator.Propose(context.Background(), trade.ID, env.owner, nil, "")
		if err != nil {
			t.Fatalf("Propose() error = %v", err)
		}

		var wg sync.WaitGroup
		results := make([]error, 2)
		targets := []uuid.UUID{first.ID, second.ID}

		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, results[j] = env.arbitrator.Accept(context.Background(), trade.ID, targets[j], env.owner)
			}(j)
		}
		wg.Wait()

		var won, lost int
		for _, err := range results {
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrOfferAlreadyDecided):
				lost++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if won != 1 || lost != 1 {
			t.Fatalf("won = %d, lost = %d, want exactly one of each", won, lost)
		}

		offers, err := env.store.GetOffers(context.Background(), trade.ID)
		if err != nil {
			t.Fatalf("GetOffers() error = %v", err)
		}
		var acceptedCount int
		for _, o := range offers {
			if o.Status == models.OfferStatusAccepted {
				acceptedCount++
			}
		}
		if acceptedCount != 1 {
			t.Fatalf("accepted offers = %d, want 1", acceptedCount)
		}
	}
}

func TestArbitratorReject(t *testing.T) {
	env := newTestEnv(t)
	trade := env.initiate(t)

	first, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, nil, "")
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	second, err := env.arbitrator.Propose(context.Background(), trade.ID, env.initiator, nil, "")
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}

	rejected, err := env.arbitrator.Reject(context.Background(), trade.ID, first.ID, env.owner)
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != models.OfferStatusRejected {
		t.Errorf("offer status = %s, want rejected", rejected.Status)
	}

	// Отклонение точечное: обмен и остальные предложения не затронуты
	got, _ := env.store.GetTrade(context.Background(), trade.ID)
	if got.Status != models.TradeStatusCountered {
		t.Errorf("trade status = %s, want countered", got.Status)
	}
	offers, _ := env.store.GetOffers(context.Background(), trade.ID)
	for _, o := range offers {
		if o.ID == second.ID && o.Status != models.OfferStatusPending {
			t.Errorf("sibling status = %s, want pending", o.Status)
		}
	}

	// Повторное отклонение
	_, err = env.arbitrator.Reject(context.Background(), trade.ID, first.ID, env.owner)
	if !errors.Is(err, ErrOfferAlreadyDecided) {
		t.Errorf("Reject() again error = %v, want offer_already_decided", err)
	}

	// Отклонять может только владелец
	_, err = env.arbitrator.Reject(context.Background(), trade.ID, second.ID, env.initiator)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("Reject() by initiator error = %v, want forbidden", err)
	}
}
