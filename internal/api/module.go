package api

import (
	"fmt"
	"strings"

	"github.com/danmuck/acctos/internal/ledger"
)

const (
	KindApp         = "app"
	KindStandalone  = "standalone"
	KindAdapter     = "adapter"
	KindAccountBase = "account_base"
)

// ModuleInfo names a module as namespace:name.
type ModuleInfo struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func (m ModuleInfo) ID() string {
	return m.Namespace + ":" + m.Name
}

func (m ModuleInfo) String() string {
	return m.ID()
}

// ParseModuleID splits "namespace:name".
func ParseModuleID(id string) (ModuleInfo, error) {
	ns, name, ok := strings.Cut(strings.TrimSpace(id), ":")
	if !ok || ns == "" || name == "" {
		return ModuleInfo{}, fmt.Errorf("%w: module id %q must be namespace:name", ErrInvalidEntry, id)
	}
	return ModuleInfo{Namespace: ns, Name: name}, nil
}

type CodeRef struct {
	CodeID ledger.CodeID `json:"code_id"`
}

type AddrRef struct {
	Address ledger.Address `json:"address"`
}

// Reference is a closed variant describing how a module is installed.
type Reference struct {
	App         *CodeRef `json:"app,omitempty"`
	Standalone  *CodeRef `json:"standalone,omitempty"`
	Adapter     *AddrRef `json:"adapter,omitempty"`
	AccountBase *CodeRef `json:"account_base,omitempty"`
}

func AppRef(code ledger.CodeID) Reference {
	return Reference{App: &CodeRef{CodeID: code}}
}

func StandaloneRef(code ledger.CodeID) Reference {
	return Reference{Standalone: &CodeRef{CodeID: code}}
}

func AdapterRef(addr ledger.Address) Reference {
	return Reference{Adapter: &AddrRef{Address: addr}}
}

func AccountBaseRef(code ledger.CodeID) Reference {
	return Reference{AccountBase: &CodeRef{CodeID: code}}
}

func (r Reference) Kind() string {
	switch {
	case r.App != nil:
		return KindApp
	case r.Standalone != nil:
		return KindStandalone
	case r.Adapter != nil:
		return KindAdapter
	case r.AccountBase != nil:
		return KindAccountBase
	default:
		return ""
	}
}

// CodeID returns the code for code-backed references.
func (r Reference) CodeID() (ledger.CodeID, bool) {
	switch {
	case r.App != nil:
		return r.App.CodeID, true
	case r.Standalone != nil:
		return r.Standalone.CodeID, true
	case r.AccountBase != nil:
		return r.AccountBase.CodeID, true
	default:
		return 0, false
	}
}

func (r Reference) Validate() error {
	set := 0
	for _, ok := range []bool{r.App != nil, r.Standalone != nil, r.Adapter != nil, r.AccountBase != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: reference must set exactly one kind, got %d", ErrInvalidEntry, set)
	}
	if r.Adapter != nil && r.Adapter.Address.IsZero() {
		return fmt.Errorf("%w: adapter reference needs an address", ErrInvalidEntry)
	}
	if code, ok := r.CodeID(); ok && code == 0 {
		return fmt.Errorf("%w: reference needs a code id", ErrInvalidEntry)
	}
	return nil
}

// ModuleRecord is one published (namespace, name, version) entry.
type ModuleRecord struct {
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Reference Reference `json:"reference"`
}

func (r ModuleRecord) Info() ModuleInfo {
	return ModuleInfo{Namespace: r.Namespace, Name: r.Name}
}

// ModuleRef asks for a module at a version constraint ("" means latest).
type ModuleRef struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}
