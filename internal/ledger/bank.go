package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

const bankPrefix = "bank/"

func bankKey(addr Address, denom string) string {
	return bankPrefix + string(addr) + "/" + denom
}

func balanceOf(store ReadStorage, addr Address, denom string) uint64 {
	raw, ok := store.Get(bankKey(addr, denom))
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func setBalance(store Storage, addr Address, denom string, amount uint64) {
	if amount == 0 {
		store.Delete(bankKey(addr, denom))
		return
	}
	store.Set(bankKey(addr, denom), []byte(strconv.FormatUint(amount, 10)))
}

func balancesOf(store ReadStorage, addr Address) Coins {
	prefix := bankPrefix + string(addr) + "/"
	var out Coins
	store.Range(prefix, "", func(k string, v []byte) bool {
		n, err := strconv.ParseUint(string(v), 10, 64)
		if err == nil && n > 0 {
			out = append(out, Coin{Denom: strings.TrimPrefix(k, prefix), Amount: n})
		}
		return true
	})
	return out
}

func transfer(store Storage, from, to Address, amount Coins) error {
	for _, c := range amount.Normalize() {
		have := balanceOf(store, from, c.Denom)
		if have < c.Amount {
			return fmt.Errorf("%w: %s has %d%s, needs %s", ErrInsufficientFunds, from, have, c.Denom, c)
		}
		setBalance(store, from, c.Denom, have-c.Amount)
		setBalance(store, to, c.Denom, balanceOf(store, to, c.Denom)+c.Amount)
	}
	return nil
}

func mint(store Storage, to Address, amount Coins) {
	for _, c := range amount.Normalize() {
		setBalance(store, to, c.Denom, balanceOf(store, to, c.Denom)+c.Amount)
	}
}
