package pipeline

import (
	"errors"
	"time"

	"github.com/rawblock/shuffle-linkage/internal/features"
	"github.com/rawblock/shuffle-linkage/internal/groundtruth"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// Inputs names the files one dataset is loaded from. Empty paths are
// simply not loaded; which ground-truth strategies are usable follows from
// which tables are present.
type Inputs struct {
	FeaturesPath string // per-address feature table
	EnrichedPath string // enriched transactions, used when FeaturesPath is empty
	Extract      features.ExtractOptions

	RolesPath   string // uid -> role JSONL
	WalletsPath string // wallet table
	GroupsPath  string // explicit role groups
}

// Dataset is the immutable input snapshot of a run: the feature store and
// the ground-truth resolver. Runs and sweeps share it without locking.
type Dataset struct {
	Store    *features.Store
	Resolver *groundtruth.Resolver

	// Validation holds cross-validation findings between the chained role
	// mapping and the explicit table, when both were supplied.
	Validation []models.ConflictError
}

var ErrNoFeatureInput = errors.New("either a feature table or enriched transactions must be supplied")

// LoadDataset reads every supplied input. Schema faults are fatal and come
// back as *models.StageError naming the stage.
func (p *Pipeline) LoadDataset(in Inputs) (*Dataset, error) {
	ds := &Dataset{}

	err := p.stage(StageLoadFeatures, func() error {
		var raw map[string]models.RawStats
		switch {
		case in.FeaturesPath != "":
			stats, err := features.LoadStatsFile(in.FeaturesPath)
			if err != nil {
				return err
			}
			raw = stats
		case in.EnrichedPath != "":
			txs, err := features.LoadEnrichedFile(in.EnrichedPath)
			if err != nil {
				return err
			}
			stats, err := features.Extract(txs, in.Extract)
			if err != nil {
				return err
			}
			raw = stats
		default:
			return ErrNoFeatureInput
		}
		store, err := features.Build(raw)
		if err != nil {
			return err
		}
		ds.Store = store
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.log.Info("feature store built",
		"addresses", ds.Store.Len(), "excluded", len(ds.Store.Excluded()), "dim", ds.Store.Dim())
	for _, d := range ds.Store.Duplicates() {
		p.log.Warn("conflicting duplicate feature records, address dropped",
			"address", d.Address, "first", d.First, "second", d.Second, "field", d.Field)
	}

	err = p.stage(StageLoadGroundTruth, func() error {
		var src groundtruth.Sources
		if in.RolesPath != "" {
			roles, conflicts, err := groundtruth.LoadRoleTableFile(in.RolesPath)
			if err != nil {
				return err
			}
			src.Roles, src.RoleConflicts = roles, conflicts
		}
		if in.WalletsPath != "" {
			wallets, err := groundtruth.LoadWalletsFile(in.WalletsPath)
			if err != nil {
				return err
			}
			src.Wallets = wallets
		}
		if in.GroupsPath != "" {
			groups, err := groundtruth.LoadRoleGroupsFile(in.GroupsPath)
			if err != nil {
				return err
			}
			src.Groups = groups
		}
		ds.Resolver = groundtruth.NewResolver(src)
		validation, err := ds.Resolver.Validate()
		if err != nil {
			return err
		}
		ds.Validation = validation
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ds.Validation) > 0 {
		p.log.Warn("ground truth sources disagree", "conflicts", len(ds.Validation))
	}
	return ds, nil
}

// NewDataset wraps already-built inputs.
func NewDataset(store *features.Store, resolver *groundtruth.Resolver) (*Dataset, error) {
	if store == nil || resolver == nil {
		return nil, errors.New("dataset needs a feature store and a resolver")
	}
	validation, err := resolver.Validate()
	if err != nil {
		return nil, err
	}
	return &Dataset{Store: store, Resolver: resolver, Validation: validation}, nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.ObserveStage(name, time.Since(start))
	if err != nil {
		return &models.StageError{Stage: name, Err: err}
	}
	return nil
}
