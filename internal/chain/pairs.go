package chain

import (
	"fmt"
	"log/slog"

	"github.com/cathlab/stackcheck/internal/device"
)

// GenerateChainPairs expands chain configurations into the full pair tree:
// one path per chain, one connection per adjacent position, and one pair
// per variant combination across the connection. Chains whose sequence and
// levels disagree, or with fewer than two positions, are skipped.
func GenerateChainPairs(chains []Config, devices map[string]DeviceRef, db *device.Store, log *slog.Logger) []*ChainResult {
	if log == nil {
		log = slog.Default()
	}

	var results []*ChainResult
	for idx, cfg := range chains {
		if len(cfg.Sequence) < 2 || len(cfg.Sequence) != len(cfg.Levels) {
			continue
		}

		var connections []*Connection
		for i := 0; i < len(cfg.Sequence)-1; i++ {
			innerName := cfg.Sequence[i]
			outerName := cfg.Sequence[i+1]
			innerIDs := devices[innerName].IDs
			outerIDs := devices[outerName].IDs

			if len(innerIDs) == 0 {
				log.Warn("no variant ids for inner device", "device", innerName)
			}
			if len(outerIDs) == 0 {
				log.Warn("no variant ids for outer device", "device", outerName)
			}

			innerLevel := cfg.Levels[i]
			outerLevel := cfg.Levels[i+1]
			connType := InterLevel
			connStr := innerLevel + "->" + outerLevel
			if innerLevel == outerLevel {
				connType = IntraLevel
				connStr = innerLevel + "<->" + outerLevel
			}

			var pairs []*Pair
			for _, innerID := range innerIDs {
				for _, outerID := range outerIDs {
					inner, _ := db.Get(innerID)
					outer, _ := db.Get(outerID)
					pairs = append(pairs, &Pair{
						Key:       fmt.Sprintf("%s-%s", innerID, outerID),
						Inner:     inner,
						Outer:     outer,
						InnerID:   innerID,
						OuterID:   outerID,
						InnerName: innerName,
						OuterName: outerName,
					})
				}
			}

			connections = append(connections, &Connection{
				Connection:     connStr,
				ConnectionType: connType,
				InnerDevice:    innerName,
				OuterDevice:    outerName,
				Pairs:          pairs,
			})
		}

		results = append(results, &ChainResult{
			Index:        idx + 1,
			ActiveLevels: cfg.Levels,
			Sequence:     cfg.Sequence,
			Levels:       cfg.Levels,
			TotalPaths:   1,
			Paths: []*Path{{
				Index:       0,
				Path:        cfg.Sequence,
				Connections: connections,
			}},
		})
	}
	return results
}

// ProcessChains evaluates every pair in place and returns the same tree.
func ProcessChains(results []*ChainResult) []*ChainResult {
	for _, chain := range results {
		for _, path := range chain.Paths {
			for _, conn := range path.Connections {
				for _, pair := range conn.Pairs {
					EvaluatePair(pair)
				}
			}
		}
	}
	return results
}
