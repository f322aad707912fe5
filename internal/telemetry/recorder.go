package telemetry

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	_ "github.com/mattn/go-sqlite3"
)

// sqlite допускает только одного писателя, поэтому все записи идут
// через один Recorder под мьютексом.

const recorderSchema = `
CREATE TABLE IF NOT EXISTS poses (
	step	INTEGER,
	name	TEXT,
	x		REAL,
	y		REAL,
	z		REAL,
	vx		REAL,
	vy		REAL,
	vz		REAL);
CREATE TABLE IF NOT EXISTS collisions (
	step	INTEGER,
	obj_a	TEXT,
	obj_b	TEXT,
	speed	REAL);
`

const insertPose = `INSERT INTO poses VALUES (?, ?, ?, ?, ?, ?, ?, ?);`
const insertCollision = `INSERT INTO collisions VALUES (?, ?, ?, ?);`

// Recorder - опциональный бортовой самописец: позы объектов и события
// столкновений для офлайн анализа. Это диагностика, не персистентность
// сцены: файл только пишется.
type Recorder struct {
	mu        sync.Mutex
	db        *sql.DB
	poseStmt  *sql.Stmt
	collStmt  *sql.Stmt
}

// NewRecorder открывает и инициализирует базу самописца
func NewRecorder(filename string) (*Recorder, error) {
	db, err := sql.Open("sqlite3", "file:"+filename+"?_journal_mode=OFF&_synchronous=OFF")
	if err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	if _, err := db.Exec(recorderSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: schema: %w", err)
	}
	poseStmt, err := db.Prepare(insertPose)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: %w", err)
	}
	collStmt, err := db.Prepare(insertCollision)
	if err != nil {
		poseStmt.Close()
		db.Close()
		return nil, fmt.Errorf("recorder: %w", err)
	}
	log.Printf("[Recorder] writing to %s", filename)
	return &Recorder{db: db, poseStmt: poseStmt, collStmt: collStmt}, nil
}

// RecordPose записывает позу и скорость объекта на шаге физики
func (r *Recorder) RecordPose(step uint64, name string, pos, vel mgl64.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.poseStmt.Exec(int64(step), name,
		pos.X(), pos.Y(), pos.Z(), vel.X(), vel.Y(), vel.Z()); err != nil {
		log.Printf("[Recorder] pose: %v", err)
	}
}

// RecordCollision записывает событие столкновения
func (r *Recorder) RecordCollision(step uint64, a, b string, speed float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.collStmt.Exec(int64(step), a, b, speed); err != nil {
		log.Printf("[Recorder] collision: %v", err)
	}
}

// Close закрывает базу самописца
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poseStmt.Close()
	r.collStmt.Close()
	r.db.Close()
}
