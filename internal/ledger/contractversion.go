package ledger

import (
	"fmt"

	"github.com/danmuck/acctos/internal/version"
)

// ContractVersion identifies the code that last wrote a contract's state.
type ContractVersion struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

var contractVersion = NewItem[ContractVersion]("contract_info")

func SetContractVersion(s Storage, name, ver string) error {
	if _, err := version.Parse(ver); err != nil {
		return err
	}
	return contractVersion.Save(s, ContractVersion{Contract: name, Version: ver})
}

func GetContractVersion(s ReadStorage) (ContractVersion, error) {
	return contractVersion.Load(s)
}

// AssertMigration allows migrating contract name to a strictly higher version.
func AssertMigration(s ReadStorage, name, to string) error {
	current, err := contractVersion.Load(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMigration, err)
	}
	if current.Contract != name {
		return fmt.Errorf("%w: cannot migrate %q to %q", ErrInvalidMigration, current.Contract, name)
	}
	from, err := version.Parse(current.Version)
	if err != nil {
		return fmt.Errorf("%w: stored version: %v", ErrInvalidMigration, err)
	}
	target, err := version.Parse(to)
	if err != nil {
		return fmt.Errorf("%w: target version: %v", ErrInvalidMigration, err)
	}
	if target.Compare(from) <= 0 {
		return fmt.Errorf("%w: %s %s is not above %s", ErrInvalidMigration, name, target, from)
	}
	return nil
}
