// internal/service/promotion/application/permute.go
package application

// permutations 返回 items 的全排列，n! 随元素数量急剧增长，
// 调用方用时间盒约束总评估量而不是在这里截断。
func permutations[T any](items []T) [][]T {
	if len(items) == 0 {
		return nil
	}
	result := make([][]T, 0)
	current := make([]T, 0, len(items))
	used := make([]bool, len(items))

	var walk func()
	walk = func() {
		if len(current) == len(items) {
			stack := make([]T, len(current))
			copy(stack, current)
			result = append(result, stack)
			return
		}
		for i := range items {
			if used[i] {
				continue
			}
			used[i] = true
			current = append(current, items[i])
			walk()
			current = current[:len(current)-1]
			used[i] = false
		}
	}
	walk()
	return result
}
