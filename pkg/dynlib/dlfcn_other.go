//go:build !(darwin || freebsd || linux || netbsd)

package dynlib

func dlopen(string) (uintptr, error) {
	return 0, ErrUnsupportedPlatform
}

func dlsym(uintptr, string) (uintptr, error) {
	return 0, ErrUnsupportedPlatform
}

func dlclose(uintptr) error {
	return nil
}

func call(uintptr, ...uintptr) uintptr {
	return 0
}
