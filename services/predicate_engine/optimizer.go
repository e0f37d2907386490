// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package predicate_engine

// paramGroup is a slice of parameters sharing one weight decay. The slice
// aliases the model's storage, so updates are visible to the model directly.
type paramGroup struct {
	params      []float64
	weightDecay float64
	buf         []float64
}

// nesterovSGD is stochastic gradient descent with Nesterov momentum and
// per-group L2 weight decay, following the update used by torch.optim.SGD:
//
//	g   = grad + wd*p
//	buf = m*buf + g        (buf = g on the first step)
//	g   = g + m*buf
//	p   = p - lr*g
type nesterovSGD struct {
	lr       float64
	momentum float64
	groups   []*paramGroup
	started  bool
}

func newNesterovSGD(lr, momentum float64) *nesterovSGD {
	return &nesterovSGD{lr: lr, momentum: momentum}
}

// addGroup registers params and returns the group index used by step.
func (o *nesterovSGD) addGroup(params []float64, weightDecay float64) int {
	o.groups = append(o.groups, &paramGroup{
		params:      params,
		weightDecay: weightDecay,
		buf:         make([]float64, len(params)),
	})
	return len(o.groups) - 1
}

// step applies one update. grads[i] is the gradient of group i.
func (o *nesterovSGD) step(grads [][]float64) {
	for gi, group := range o.groups {
		grad := grads[gi]
		for j, p := range group.params {
			g := grad[j] + group.weightDecay*p
			if o.momentum != 0 {
				if o.started {
					group.buf[j] = o.momentum*group.buf[j] + g
				} else {
					group.buf[j] = g
				}
				g += o.momentum * group.buf[j]
			}
			group.params[j] = p - o.lr*g
		}
	}
	o.started = true
}
