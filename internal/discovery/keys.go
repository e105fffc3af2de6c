package discovery

import (
	"fmt"

	"github.com/ipfs/go-cid"
	record "github.com/libp2p/go-libp2p-record"
	"github.com/multiformats/go-multihash"
)

// RecordNamespace prefixes every key written through PutRecord
const RecordNamespace = "v"

// ContentKey maps an arbitrary key to the CID used for provider records
func ContentKey(key string) (cid.Cid, error) {
	mh, err := multihash.Sum([]byte(key), multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to hash key: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// RecordKey returns the namespaced DHT key for a value record
func RecordKey(key string) string {
	return "/" + RecordNamespace + "/" + key
}

// recordValidator accepts any value. Select prefers the first candidate,
// which the DHT passes as the incoming value, so newer puts replace older ones.
type recordValidator struct{}

var _ record.Validator = recordValidator{}

func (recordValidator) Validate(key string, value []byte) error {
	ns, _, err := record.SplitKey(key)
	if err != nil {
		return err
	}
	if ns != RecordNamespace {
		return fmt.Errorf("unexpected record namespace %q", ns)
	}
	return nil
}

func (recordValidator) Select(key string, values [][]byte) (int, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("no values for %s", key)
	}
	return 0, nil
}

// Validator returns the namespaced validator used by the DHT
func Validator() record.Validator {
	return record.NamespacedValidator{RecordNamespace: recordValidator{}}
}
