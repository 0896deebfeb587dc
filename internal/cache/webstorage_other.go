//go:build !(js && wasm)

package cache

// browserStorage reports no browser store outside js/wasm builds
func browserStorage() WebStore {
	return nil
}
