// Package userctx implements the library's configuration surface: a User
// binds a name, a save directory, a password, a default algorithm suite,
// an owned set of RSA keypairs, a key bank of trusted peers, and a
// per-group Settings record, and builds Gateway instances from that
// bound state.
package userctx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/skyformat99/cryptogateway/internal/gateway"
	"github.com/skyformat99/cryptogateway/internal/gwerrors"
	"github.com/skyformat99/cryptogateway/internal/gwmetrics"
	"github.com/skyformat99/cryptogateway/internal/keybank"
	"github.com/skyformat99/cryptogateway/internal/logging"
	"github.com/skyformat99/cryptogateway/internal/rsakeypair"
	"github.com/skyformat99/cryptogateway/internal/suite"
)

const (
	keypairFileName = "identity.key"
	bankFileName    = "bank.db"
)

// ErrNoDefaultKey is returned when an operation needs a default public
// key (e.g. building a Gateway) and none has been bound yet.
var ErrNoDefaultKey = errors.New("userctx: no default public key bound")

// ErrUnknownGroup is returned by Gateway when no settings have been
// registered for the requested group.
var ErrUnknownGroup = errors.New("userctx: no settings registered for group")

type pkKey struct {
	algoID uint16
	words  int
}

// User is the library's top-level configuration object: constructors and
// setters bind identity, algorithm, and key material; Gateway then builds
// a handshake endpoint from whatever has been bound.
type User struct {
	mu sync.RWMutex

	username string
	saveDir  string
	password []byte

	streamSuite suite.Suite
	streams     *suite.Registry
	publicKeys  *suite.PublicKeyRegistry

	bank           *keybank.Bank
	keypairs       map[pkKey]*rsakeypair.Keypair
	defaultKeypair *rsakeypair.Keypair
	defaultKey     pkKey

	settings map[string]*gateway.Settings

	logger  *slog.Logger
	errors  *gwerrors.Registry
	metrics *gwmetrics.Metrics
}

// New constructs a user bound to username, persisting under
// saveDir/username. password may be nil; as with RSAKeypair and KeyBank
// persistence, an empty password falls back to their fixed "default"
// password rather than refusing to save.
func New(username, saveDir string, password []byte, logger *slog.Logger) (*User, error) {
	if username == "" {
		return nil, fmt.Errorf("userctx: username must not be empty")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	defaultSuite, err := suite.Global().Default(32)
	if err != nil {
		return nil, fmt.Errorf("userctx: build default suite: %w", err)
	}
	return &User{
		username:    username,
		saveDir:     saveDir,
		password:    append([]byte(nil), password...),
		streamSuite: defaultSuite,
		streams:     suite.Global(),
		publicKeys:  suite.GlobalPublicKeys(),
		bank:        keybank.New(),
		keypairs:    make(map[pkKey]*rsakeypair.Keypair),
		settings:    make(map[string]*gateway.Settings),
		logger:      logger,
		errors:      gwerrors.NewRegistry(gwerrors.DefaultLogCapacity),
	}, nil
}

// Directory returns saveDir/username, the root all of this user's files
// are written under.
func (u *User) Directory() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return filepath.Join(u.saveDir, u.username)
}

// Username returns the bound user name.
func (u *User) Username() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.username
}

// SetPassword rebinds the symmetric password used to wrap saved files.
func (u *User) SetPassword(password []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.password = append([]byte(nil), password...)
}

// SetStreamPackage rebinds the default algorithm suite new keypairs and
// gateways are built against.
func (u *User) SetStreamPackage(s suite.Suite) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.streamSuite = s
}

// SetMetrics binds the Prometheus metrics instance gateways, owned
// keypairs, and the key bank built by this user report through.
func (u *User) SetMetrics(m *gwmetrics.Metrics) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.metrics = m
	u.bank.SetMetrics(m)
	for _, kp := range u.keypairs {
		kp.SetMetrics(m)
	}
}

// AddPublicKey binds kp as one of this user's owned keypairs, indexed by
// (algoID, word length). The first key added becomes the default until
// SetDefaultPublicKey rebinds it.
func (u *User) AddPublicKey(kp *rsakeypair.Keypair, algoID uint16) bool {
	if kp == nil {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	key := pkKey{algoID: algoID, words: kp.WordLength()}
	u.keypairs[key] = kp
	kp.SetMetrics(u.metrics)
	if u.defaultKeypair == nil {
		u.defaultKeypair = kp
		u.defaultKey = key
	}
	return true
}

// SetDefaultPublicKey rebinds the default key to kp, provided kp was
// already added via AddPublicKey.
func (u *User) SetDefaultPublicKey(kp *rsakeypair.Keypair) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for key, candidate := range u.keypairs {
		if candidate == kp {
			u.defaultKeypair = kp
			u.defaultKey = key
			return true
		}
	}
	return false
}

// DefaultPublicKey returns the user's default owned keypair.
func (u *User) DefaultPublicKey() (*rsakeypair.Keypair, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.defaultKeypair, u.defaultKeypair != nil
}

// FindPublicKey looks up an owned keypair by algorithm id and word
// length.
func (u *User) FindPublicKey(algoID uint16, words int) (*rsakeypair.Keypair, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	kp, ok := u.keypairs[pkKey{algoID: algoID, words: words}]
	return kp, ok
}

// KeyBank returns the bank of trusted peer keys this user has
// accumulated.
func (u *User) KeyBank() *keybank.Bank {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.bank
}

// FindSettings returns the GatewaySettings registered for group, if any.
func (u *User) FindSettings(group string) (*gateway.Settings, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	s, ok := u.settings[group]
	return s, ok
}

// InsertSettings builds and registers GatewaySettings for group, using
// the user's default public key and bound algorithm preferences. nodeName
// defaults to the username when empty.
func (u *User) InsertSettings(group, nodeName string, pk gateway.PublicKeyPreference, hash gateway.HashPreference, streamAlgoID uint16) (*gateway.Settings, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if nodeName == "" {
		nodeName = u.username
	}

	pubN := u.defaultKeypair

	var s *gateway.Settings
	var err error
	if pubN != nil {
		s, err = gateway.NewSettings(group, nodeName, pk, hash, streamAlgoID, pubN.CurrentN())
	} else {
		s, err = gateway.NewSettings(group, nodeName, pk, hash, streamAlgoID, nil)
	}
	if err != nil {
		return nil, err
	}
	u.settings[group] = s
	return s, nil
}

// Gateway builds a Gateway endpoint for group using this user's default
// keypair, bank, bound suite registries, and registered settings.
func (u *User) Gateway(group string, cfg GatewayTiming) (*gateway.Gateway, error) {
	u.mu.RLock()
	own, ok := u.settings[group]
	if !ok {
		u.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, group)
	}
	if u.defaultKeypair == nil {
		u.mu.RUnlock()
		return nil, ErrNoDefaultKey
	}
	gwCfg := gateway.Config{
		Own:           own,
		Keypair:       u.defaultKeypair,
		Bank:          u.bank,
		Streams:       u.streams,
		PublicKeys:    u.publicKeys,
		Timeout:       cfg.Timeout,
		SafeTimeout:   cfg.SafeTimeout,
		ErrorTimeout:  cfg.ErrorTimeout,
		StreamTimeout: cfg.StreamTimeout,
		Logger:        u.logger,
		Errors:        u.errors,
		Metrics:       u.metrics,
	}
	u.mu.RUnlock()
	return gateway.New(gwCfg)
}

// GatewayTiming carries the handshake timing knobs Gateway needs; callers
// typically populate this from config.GatewayConfig.
type GatewayTiming struct {
	Timeout       time.Duration
	SafeTimeout   time.Duration
	ErrorTimeout  time.Duration
	StreamTimeout time.Duration
}

// Save persists every owned keypair and the key bank under
// Directory(), using the bound password (PRIVATE_UNLOCK).
func (u *User) Save() error {
	u.mu.RLock()
	dir := filepath.Join(u.saveDir, u.username)
	password := append([]byte(nil), u.password...)
	s := u.streamSuite
	bank := u.bank
	keypairs := make(map[pkKey]*rsakeypair.Keypair, len(u.keypairs))
	for k, v := range u.keypairs {
		keypairs[k] = v
	}
	u.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("userctx: create %s: %w", dir, err)
	}

	for key, kp := range keypairs {
		name := fmt.Sprintf("%s.%d.%d", keypairFileName, key.algoID, key.words)
		if err := saveFile(filepath.Join(dir, name), func(w io.Writer) error {
			return kp.Save(w, s, password)
		}); err != nil {
			return err
		}
	}

	return saveFile(filepath.Join(dir, bankFileName), func(w io.Writer) error {
		return bank.Save(w, s, password)
	})
}

// Load reads back a user directory written by Save. Every keypair file
// matching keypairFileName's prefix is loaded and added via
// AddPublicKey; the bank file, if present, replaces the empty one New
// creates.
func Load(username, saveDir string, password []byte, logger *slog.Logger) (*User, error) {
	u, err := New(username, saveDir, password, logger)
	if err != nil {
		return nil, err
	}
	dir := u.Directory()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("userctx: read %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case name == bankFileName:
			bank, err := loadFile(filepath.Join(dir, name), func(r io.Reader) (*keybank.Bank, error) {
				return keybank.Load(r, u.streamSuite, password)
			})
			if err != nil {
				return nil, err
			}
			u.bank = bank
		case len(name) > len(keypairFileName) && name[:len(keypairFileName)] == keypairFileName:
			var algoID uint16
			var words int
			if _, err := fmt.Sscanf(name, keypairFileName+".%d.%d", &algoID, &words); err != nil {
				continue
			}
			kp, err := loadFile(filepath.Join(dir, name), func(r io.Reader) (*rsakeypair.Keypair, error) {
				return rsakeypair.Load(r, u.streamSuite, password, logger)
			})
			if err != nil {
				return nil, err
			}
			u.AddPublicKey(kp, algoID)
		}
	}
	return u, nil
}

func saveFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("userctx: create %s: %w", path, err)
	}
	defer f.Close()
	if err := write(f); err != nil {
		return fmt.Errorf("userctx: write %s: %w", path, err)
	}
	return nil
}

func loadFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("userctx: open %s: %w", path, err)
	}
	defer f.Close()
	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("userctx: read %s: %w", path, err)
	}
	return v, nil
}
