package credentials

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"

	vrerrors "github.com/otherjamesbrown/voxreel/pkg/errors"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringStore()

	if _, err := store.Get(DBPassword); !vrerrors.IsNotFound(err) {
		t.Fatalf("Get() on empty keyring error = %v, want not found", err)
	}

	if err := store.Set(DBPassword, "s3cret"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := store.Get(DBPassword)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "s3cret" {
		t.Errorf("Get() = %q, want %q", got, "s3cret")
	}

	if err := store.Delete(DBPassword); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(DBPassword); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if _, err := store.Get(DBPassword); !vrerrors.IsNotFound(err) {
		t.Errorf("Get() after delete error = %v, want not found", err)
	}
}

func TestKeyringStore_SetEmpty(t *testing.T) {
	keyring.MockInit()
	if err := NewKeyringStore().Set(RedisPassword, ""); !vrerrors.IsValidation(err) {
		t.Errorf("Set(\"\") error = %v, want validation error", err)
	}
}

func TestKeyringStore_Unavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("dbus not running"))
	defer keyring.MockInit()

	_, err := NewKeyringStore().Get(DBPassword)
	if !errors.Is(err, ErrKeyringUnavailable) {
		t.Errorf("Get() error = %v, want ErrKeyringUnavailable", err)
	}
}

func TestLookup(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringStore()

	t.Run("env wins", func(t *testing.T) {
		t.Setenv("VOXREEL_TEST_PASSWORD", "from-env")
		if err := store.Set(DBPassword, "from-keyring"); err != nil {
			t.Fatal(err)
		}
		got, err := Lookup(store, "VOXREEL_TEST_PASSWORD", DBPassword)
		if err != nil || got != "from-env" {
			t.Errorf("Lookup() = %q, %v; want from-env", got, err)
		}
	})

	t.Run("keyring fallback", func(t *testing.T) {
		got, err := Lookup(store, "VOXREEL_TEST_PASSWORD_UNSET", DBPassword)
		if err != nil || got != "from-keyring" {
			t.Errorf("Lookup() = %q, %v; want from-keyring", got, err)
		}
	})

	t.Run("missing is empty", func(t *testing.T) {
		got, err := Lookup(store, "VOXREEL_TEST_PASSWORD_UNSET", RedisPassword)
		if err != nil || got != "" {
			t.Errorf("Lookup() = %q, %v; want empty", got, err)
		}
	})

	t.Run("nil store", func(t *testing.T) {
		got, err := Lookup(nil, "VOXREEL_TEST_PASSWORD_UNSET", DBPassword)
		if err != nil || got != "" {
			t.Errorf("Lookup() = %q, %v; want empty", got, err)
		}
	})

	t.Run("unavailable keyring is empty", func(t *testing.T) {
		keyring.MockInitWithError(errors.New("locked"))
		defer keyring.MockInit()
		got, err := Lookup(NewKeyringStore(), "VOXREEL_TEST_PASSWORD_UNSET", DBPassword)
		if err != nil || got != "" {
			t.Errorf("Lookup() = %q, %v; want empty", got, err)
		}
	})
}
