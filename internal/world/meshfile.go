package world

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// TriMesh - треугольная сетка, загруженная из файла. Детектор
// столкновений сеток - внешний компонент; здесь только геометрия.
type TriMesh struct {
	Vertices []mgl64.Vec3
	Faces    [][3]int
}

// LoadOBJ читает вершины и грани из Wavefront OBJ файла.
// Многоугольные грани триангулируются веером.
func LoadOBJ(path string) (*TriMesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mesh %s: %w", path, err)
	}
	defer f.Close()

	mesh := &TriMesh{}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("mesh %s:%d: short vertex line", path, line)
			}
			var v mgl64.Vec3
			for i := 0; i < 3; i++ {
				v[i], err = strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("mesh %s:%d: %w", path, line, err)
				}
			}
			mesh.Vertices = append(mesh.Vertices, v)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("mesh %s:%d: short face line", path, line)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				// форма a, a/b, a//c, a/b/c - нужен только индекс вершины
				if slash := strings.IndexByte(tok, '/'); slash >= 0 {
					tok = tok[:slash]
				}
				n, err := strconv.Atoi(tok)
				if err != nil {
					return nil, fmt.Errorf("mesh %s:%d: %w", path, line, err)
				}
				if n < 0 {
					n = len(mesh.Vertices) + n + 1
				}
				if n < 1 || n > len(mesh.Vertices) {
					return nil, fmt.Errorf("mesh %s:%d: vertex index %d out of range", path, line, n)
				}
				idx = append(idx, n-1)
			}
			for i := 1; i+1 < len(idx); i++ {
				mesh.Faces = append(mesh.Faces, [3]int{idx[0], idx[i], idx[i+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mesh %s: %w", path, err)
	}
	if len(mesh.Vertices) == 0 || len(mesh.Faces) == 0 {
		return nil, fmt.Errorf("mesh %s: no geometry", path)
	}
	return mesh, nil
}

// Bounds возвращает радиус ограничивающей сферы вокруг начала координат
func (m *TriMesh) Bounds() float64 {
	r := 0.0
	for _, v := range m.Vertices {
		if l := v.Len(); l > r {
			r = l
		}
	}
	return r
}
