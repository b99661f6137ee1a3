package persistence

import "fmt"

// Key layout. Every persisted record lives under one of these prefixes so
// a single Iter(prefix) call can recover a whole category during replay.
const (
	prefixOrder    = "order:"
	prefixFill     = "fill:"
	prefixSnapshot = "snapshot:"
)

func OrderKey(asset uint32, orderID uint64) string {
	return fmt.Sprintf("%s%d:%d", prefixOrder, asset, orderID)
}

func FillKey(asset uint32, sequence uint64) string {
	return fmt.Sprintf("%s%d:%020d", prefixFill, asset, sequence)
}

func SnapshotKey(asset uint32, height uint64) string {
	return fmt.Sprintf("%s%d:%020d", prefixSnapshot, asset, height)
}

func OrderPrefix(asset uint32) string {
	return fmt.Sprintf("%s%d:", prefixOrder, asset)
}

func FillPrefix(asset uint32) string {
	return fmt.Sprintf("%s%d:", prefixFill, asset)
}

func SnapshotPrefix(asset uint32) string {
	return fmt.Sprintf("%s%d:", prefixSnapshot, asset)
}
