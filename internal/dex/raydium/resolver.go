// internal/dex/raydium/resolver.go
package raydium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/raydium-watcher/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PoolInfoFetcher ищет пул по паре минтов во внешнем источнике метаданных.
type PoolInfoFetcher interface {
	FetchPoolByMints(ctx context.Context, mint1, mint2 solana.PublicKey) (*APIPoolInfo, error)
}

// PoolKeySource восстанавливает PoolKey по адресу пула.
type PoolKeySource interface {
	FetchPoolKey(ctx context.Context, id solana.PublicKey) (*PoolKey, error)
}

// PoolFeeSource читает комиссию пула, когда метаданные API её не дали.
type PoolFeeSource interface {
	FetchPoolFee(ctx context.Context, id solana.PublicKey) (uint16, error)
}

// FetchPoolKey реализует PoolKeySource поверх /pools/key/ids.
func (a *APIClient) FetchPoolKey(ctx context.Context, id solana.PublicKey) (*PoolKey, error) {
	return a.FetchPoolKeysByID(ctx, id)
}

// pairLookup - результат параллельного чтения кэша для пары.
type pairLookup struct {
	key  *PoolKey
	info *APIPoolInfo
}

// GetPoolAddress разрешает пару в адрес пула: кэш PoolKey в обоих порядках,
// затем кэш метаданных API, затем сам API. Ответ API кэшируется.
func (s *QuoteService) GetPoolAddress(ctx context.Context, a, b solana.PublicKey) (PoolAddress, error) {
	found, err := s.lookupPair(ctx, a, b)
	if err != nil {
		return PoolAddress{}, err
	}

	fee, feeKnown := s.cfg.DefaultFeeBps, false
	if found.info != nil {
		fee, feeKnown = feeOrDefault(found.info, fee)
	}

	switch {
	case found.key != nil:
		s.keys.Add(found.key.ID, found.key)
		if !feeKnown {
			fee = s.onChainFee(ctx, found.key.ID)
		}
		return PoolAddress{ID: found.key.ID, FeeBps: fee, Source: "pair-cache"}, nil
	case found.info != nil:
		id, err := found.info.PoolID()
		if err != nil {
			return PoolAddress{}, fmt.Errorf("cached pool info %s/%s: %w", a, b, err)
		}
		if !feeKnown {
			fee = s.onChainFee(ctx, id)
		}
		return PoolAddress{ID: id, FeeBps: fee, Source: "info-cache"}, nil
	}

	if s.api == nil {
		return PoolAddress{}, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, a, b)
	}
	info, err := s.api.FetchPoolByMints(ctx, a, b)
	if err != nil {
		return PoolAddress{}, err
	}
	id, err := info.PoolID()
	if err != nil {
		return PoolAddress{}, err
	}
	if fee, feeKnown = feeOrDefault(info, fee); !feeKnown {
		fee = s.onChainFee(ctx, id)
	}

	if encoded, err := json.Marshal(info); err == nil {
		if err := s.store.Set(ctx, PoolInfoCacheKey(a, b), string(encoded), s.cfg.PoolKeyTTL); err != nil {
			s.logger.Warn("Failed to cache pool info", zap.Error(err))
		}
	}

	s.logger.Debug("Pool address resolved via API",
		zap.String("pool", id.String()),
		zap.Uint16("fee_bps", fee))
	return PoolAddress{ID: id, FeeBps: fee, Source: "api"}, nil
}

func feeOrDefault(info *APIPoolInfo, def uint16) (uint16, bool) {
	if bps, ok := info.FeeBps(); ok {
		return bps, true
	}
	return def, false
}

// onChainFee читает комиссию из аккаунта пула. Любая ошибка даёт default_fee_bps:
// котировка не должна падать из-за недоступной комиссии.
func (s *QuoteService) onChainFee(ctx context.Context, id solana.PublicKey) uint16 {
	if s.fees == nil {
		return s.cfg.DefaultFeeBps
	}
	if bps, ok := s.feeCache.Get(id); ok {
		return bps
	}
	bps, err := s.fees.FetchPoolFee(ctx, id)
	if err != nil {
		s.logger.Warn("Pool fee unavailable, using default",
			zap.String("pool", id.String()),
			zap.Uint16("fee_bps", s.cfg.DefaultFeeBps),
			zap.Error(err))
		return s.cfg.DefaultFeeBps
	}
	s.feeCache.Add(id, bps)
	return bps
}

// lookupPair читает четыре ключа кэша параллельно. Промах не ошибка.
func (s *QuoteService) lookupPair(ctx context.Context, a, b solana.PublicKey) (pairLookup, error) {
	keys := []string{
		PairCacheKey(a, b),
		PairCacheKey(b, a),
		PoolInfoCacheKey(a, b),
		PoolInfoCacheKey(b, a),
	}
	raw := make([]string, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, k := range keys {
		g.Go(func() error {
			v, err := s.store.Get(gctx, k)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", k, err)
			}
			raw[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pairLookup{}, err
	}

	var out pairLookup
	for _, v := range raw[:2] {
		if v == "" || out.key != nil {
			continue
		}
		var key PoolKey
		if err := json.Unmarshal([]byte(v), &key); err != nil {
			s.logger.Warn("Corrupted pool key in cache", zap.Error(err))
			continue
		}
		out.key = &key
	}
	for _, v := range raw[2:] {
		if v == "" || out.info != nil {
			continue
		}
		var info APIPoolInfo
		if err := json.Unmarshal([]byte(v), &info); err != nil {
			s.logger.Warn("Corrupted pool info in cache", zap.Error(err))
			continue
		}
		out.info = &info
	}
	return out, nil
}

// GetPoolKey возвращает PoolKey по адресу: LRU, кэш, затем источники по порядку.
func (s *QuoteService) GetPoolKey(ctx context.Context, id solana.PublicKey) (*PoolKey, error) {
	if key, ok := s.keys.Get(id); ok {
		return key, nil
	}

	cacheKey := PoolKeyCacheKey(id)
	raw, err := s.store.Get(ctx, cacheKey)
	switch {
	case err == nil:
		var key PoolKey
		if err := json.Unmarshal([]byte(raw), &key); err == nil {
			s.keys.Add(id, &key)
			return &key, nil
		}
		s.logger.Warn("Corrupted pool key in cache", zap.String("key", cacheKey))
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("get %s: %w", cacheKey, err)
	}

	var errs []error
	for _, src := range s.sources {
		key, err := src.FetchPoolKey(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}

		if encoded, err := json.Marshal(key); err == nil {
			if err := s.store.Set(ctx, cacheKey, string(encoded), s.cfg.PoolKeyTTL); err != nil {
				s.logger.Warn("Failed to cache pool key", zap.String("key", cacheKey), zap.Error(err))
			}
		}
		s.keys.Add(id, key)
		return key, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrPoolNotFound, id, errors.Join(errs...))
}

// GetReserves возвращает резервы пула: свежий снимок из кэша, иначе балансы хранилищ.
func (s *QuoteService) GetReserves(ctx context.Context, key *PoolKey) (InitialReserves, error) {
	cacheKey := ReservesCacheKey(key.MintA.Address, key.MintB.Address)

	raw, err := s.store.Get(ctx, cacheKey)
	switch {
	case err == nil:
		snapshot, err := decodeReservesSnapshot(raw)
		if err == nil && snapshot.Fresh(s.now(), s.cfg.ReservesTTL) {
			if reserves, ok := snapshot.Reserves(key.MintA.Address, key.MintB.Address); ok {
				return reserves, nil
			}
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("get %s: %w", cacheKey, err)
	}

	if s.reader == nil {
		return nil, fmt.Errorf("%w: pool %s", ErrReservesNotFound, key.ID)
	}
	accounts, err := s.reader.GetMultipleAccounts(ctx, []solana.PublicKey{key.Vault.A, key.Vault.B})
	if err != nil {
		return nil, fmt.Errorf("read vaults of %s: %w", key.ID, err)
	}
	if len(accounts) != 2 || accounts[0] == nil || accounts[1] == nil {
		return nil, fmt.Errorf("%w: vault accounts of %s", ErrReservesNotFound, key.ID)
	}

	reserves := make(InitialReserves, 2)
	for i, mint := range []Mint{key.MintA, key.MintB} {
		vaultMint, amount, err := DecodeTokenAmount(accounts[i].Data)
		if err != nil {
			return nil, err
		}
		if !vaultMint.Equals(mint.Address) {
			return nil, &ValidationError{Field: "vault", Message: fmt.Sprintf("holds %s, want %s", vaultMint, mint.Address)}
		}
		reserves[mint.Address] = FromBaseUnits(new(big.Int).SetUint64(amount), mint.Decimals)
	}

	encoded, err := json.Marshal(NewReservesSnapshot(reserves, s.now()))
	if err == nil {
		if err := s.store.Set(ctx, cacheKey, string(encoded), 0); err != nil {
			s.logger.Warn("Failed to cache reserves", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return reserves, nil
}
