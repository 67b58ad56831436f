package groundtruth

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

const (
	sourceRoles   = "trace_features.jsonl"
	sourceWallets = "wallets_with_shuffling.json"
	sourceGroups  = "role_merged_wallets.json"

	maxLineBytes = 4 << 20
)

// RoleTable maps a uid (equal to the wallet index) to its role.
type RoleTable map[int]string

// LoadRoleTable reads uid -> role records from JSON Lines. Lines lacking a
// uid or a non-empty role are skipped; that is the only record ever dropped
// silently. A uid seen with two different roles is removed from the table
// and reported as a conflict.
func LoadRoleTable(r io.Reader) (RoleTable, []models.ConflictError, error) {
	table := make(RoleTable)
	conflicted := make(map[int]bool)
	var conflicts []models.ConflictError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec models.RoleRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, nil, &models.SchemaError{Source: sourceRoles, Record: "line " + strconv.Itoa(line), Reason: err.Error()}
		}
		if rec.UID == nil || rec.Role == "" {
			continue
		}
		uid := *rec.UID
		if conflicted[uid] {
			continue
		}
		if prev, ok := table[uid]; ok && prev != rec.Role {
			conflicts = append(conflicts, models.ConflictError{
				Address: "uid " + strconv.Itoa(uid), First: prev, Second: rec.Role, Source: sourceRoles,
			})
			conflicted[uid] = true
			delete(table, uid)
			continue
		}
		table[uid] = rec.Role
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, &models.SchemaError{Source: sourceRoles, Record: "line " + strconv.Itoa(line+1), Reason: err.Error()}
	}
	return table, conflicts, nil
}

// LoadWallets reads the wallet table. Every wallet must carry an index.
func LoadWallets(r io.Reader) ([]models.WalletRecord, error) {
	var wallets []models.WalletRecord
	if err := json.NewDecoder(r).Decode(&wallets); err != nil {
		return nil, &models.SchemaError{Source: sourceWallets, Record: "(document)", Reason: err.Error()}
	}
	for i, w := range wallets {
		if w.Index == nil {
			return nil, &models.SchemaError{Source: sourceWallets, Record: fmt.Sprintf("[%d]", i), Field: "index", Reason: "missing"}
		}
	}
	return wallets, nil
}

// LoadRoleGroups reads the explicit role-merged group table.
func LoadRoleGroups(r io.Reader) ([]models.RoleGroupRecord, error) {
	var groups []models.RoleGroupRecord
	if err := json.NewDecoder(r).Decode(&groups); err != nil {
		return nil, &models.SchemaError{Source: sourceGroups, Record: "(document)", Reason: err.Error()}
	}
	for i, g := range groups {
		if g.Role == "" {
			return nil, &models.SchemaError{Source: sourceGroups, Record: fmt.Sprintf("[%d]", i), Field: "role", Reason: "missing"}
		}
		for j, a := range g.Addresses {
			if models.NormalizeAddress(a.SmartAccountAddress) == "" {
				return nil, &models.SchemaError{
					Source: sourceGroups, Record: fmt.Sprintf("[%d].addresses[%d]", i, j),
					Field: "smartAccountAddress", Reason: "missing",
				}
			}
		}
	}
	return groups, nil
}

func openWith[T any](path string, load func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return load(f)
}

// LoadWalletsFile is LoadWallets over a file path.
func LoadWalletsFile(path string) ([]models.WalletRecord, error) {
	return openWith(path, LoadWallets)
}

// LoadRoleGroupsFile is LoadRoleGroups over a file path.
func LoadRoleGroupsFile(path string) ([]models.RoleGroupRecord, error) {
	return openWith(path, LoadRoleGroups)
}

// LoadRoleTableFile is LoadRoleTable over a file path.
func LoadRoleTableFile(path string) (RoleTable, []models.ConflictError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return LoadRoleTable(f)
}
