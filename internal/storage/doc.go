package storage

// Package storage persists the bot's sheets:
//
//   - Schedule records (the recurring trigger sheet)
//   - Exercise activity log
//   - Trigger fire audit
//
// Two drivers are provided: "csv" keeps each sheet as a hand-editable CSV
// file, "sqlite" keeps everything in one database file.
