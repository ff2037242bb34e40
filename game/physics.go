package game

import "math"

// advance integrates one tick scaled by factor and returns the side that scored, if any.
// The caller must hold the match lock.
func advance(s *MatchState, factor float64, nudge func() float64) Side {
	movePaddle(&s.PaddleA, factor)
	movePaddle(&s.PaddleB, factor)

	s.Ball.X += s.Ball.VX * factor
	s.Ball.Y += s.Ball.VY * factor
	bounceWalls(&s.Ball)

	collide(&s.Ball, &s.PaddleA, SideA)
	collide(&s.Ball, &s.PaddleB, SideB)

	return score(s, nudge)
}

func movePaddle(p *Paddle, factor float64) {
	p.Y += p.VY * factor
	p.Y = math.Max(0, math.Min(FieldHeight-p.Height, p.Y))
}

func bounceWalls(b *Ball) {
	if b.Y-b.Radius <= 0 {
		b.Y = b.Radius
		b.VY = math.Abs(b.VY)
	} else if b.Y+b.Radius >= FieldHeight {
		b.Y = FieldHeight - b.Radius
		b.VY = -math.Abs(b.VY)
	}
}

// collide reflects the ball off p when the ball's horizontal extent overlaps the paddle's
// span, the ball center is inside its vertical span and the ball moves toward it.
func collide(b *Ball, p *Paddle, side Side) bool {
	if b.Y < p.Y || b.Y > p.Y+p.Height {
		return false
	}
	if b.X-b.Radius > p.X+p.Width || b.X+b.Radius < p.X {
		return false
	}
	switch side {
	case SideA:
		if b.VX >= 0 {
			return false
		}
	case SideB:
		if b.VX <= 0 {
			return false
		}
	default:
		return false
	}

	if side == SideA {
		b.VX = math.Abs(b.VX)
		b.X = p.X + p.Width + b.Radius
	} else {
		b.VX = -math.Abs(b.VX)
		b.X = p.X - b.Radius
	}
	offset := (b.Y - p.centerY()) / (p.Height / 2)
	b.VY = offset * SpinFactor
	return true
}

// score awards a point when the ball crosses a side boundary and re-serves it.
func score(s *MatchState, nudge func() float64) Side {
	var scorer Side
	switch {
	case s.Ball.X <= 0:
		scorer = SideB
		s.PaddleB.Score++
	case s.Ball.X >= FieldWidth:
		scorer = SideA
		s.PaddleA.Score++
	default:
		return SideNone
	}
	serve(&s.Ball, scorer, nudge)
	return scorer
}

// serve centers the ball and sends it toward the given side.
func serve(b *Ball, toward Side, nudge func() float64) {
	b.X = FieldWidth / 2
	b.Y = FieldHeight / 2
	b.VX = ServeSpeed
	if toward == SideA {
		b.VX = -ServeSpeed
	}
	b.VY = nudge()
}

// tickFactor converts the elapsed time since the last update into ideal-tick units.
func tickFactor(elapsedSeconds, idealSeconds float64) float64 {
	if idealSeconds <= 0 || elapsedSeconds <= 0 {
		return 0
	}
	return math.Min(elapsedSeconds/idealSeconds, MaxTickFactor)
}
