//go:build !linux

package main

func realtime() error {
	return nil
}
