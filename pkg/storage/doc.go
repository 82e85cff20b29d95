// Package storage manages the shared media directory.
//
// Every downloaded file goes through Save, which writes a temporary file and
// renames it into place, so a crashed download never leaves a truncated file
// under its final name. The directory doubles as the resend cache: Recent
// returns the newest files when the last run's batch is gone.
//
//	manager, err := storage.NewManager("media")
//	if err != nil {
//	    return err
//	}
//	path, size, err := manager.Save(body, "3141.jpg")
package storage
